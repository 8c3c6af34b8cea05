// Package dockerfile lexes and parses Dockerfiles into a stage graph, then
// walks that graph to infer the runtime contract a built image is expected
// to satisfy: files it should contain, ports it should listen on, processes
// and commands it should be able to run, and the user it runs as.
//
// The pipeline has three stages:
//
//   - Parse turns raw bytes into a *Dockerfile: logical lines folded across
//     backslash continuations and heredocs, instructions classified by
//     InstructionKind, arguments expanded against a two-tier ARG/ENV Scope.
//   - Resolve (stage.go) builds the inter-stage COPY --from dependency graph
//     and determines the final target stage.
//   - Extract (extractor.go) walks the target stage's instructions,
//     producing Assertions into a RuntimeContractModel.
//
// Supported instructions: FROM (with AS aliasing and --platform), RUN (shell
// and exec form, heredocs), COPY (including --from=stage), ADD, ENV,
// WORKDIR, ARG, USER, EXPOSE, VOLUME, LABEL, CMD, ENTRYPOINT, SHELL,
// HEALTHCHECK (CMD and NONE), STOPSIGNAL, ONBUILD (recorded, not expanded),
// and MAINTAINER. Unrecognized instructions are retained as InstructionUnknown
// with a Warning rather than treated as fatal, so a Dockerfile using a
// newer instruction this package doesn't model still yields a best-effort
// contract instead of no contract at all.
//
// ADD with a remote URL source and archive auto-extraction, and true
// build-time execution of RUN commands, are out of scope: this package
// performs static analysis only, never runs a container.
package dockerfile
