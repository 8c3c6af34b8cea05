package probe

import "testing"

func TestParseRuntime(t *testing.T) {
	cases := map[string]Runtime{"docker": RuntimeDocker, "": RuntimeDocker, "PODMAN": RuntimePodman}
	for in, want := range cases {
		got, err := ParseRuntime(in)
		if err != nil {
			t.Fatalf("ParseRuntime(%q) failed: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseRuntime(%q) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseRuntime("lxc"); err == nil {
		t.Error("expected an error for an unsupported runtime")
	}
}

func TestParseProcesses(t *testing.T) {
	lines := []string{
		"USER  PID %CPU %MEM VSZ RSS TTY STAT START TIME COMMAND",
		"root    1  0.0  0.1 1234 567 ?   Ss   00:00 0:00 /usr/local/bin/server",
	}
	procs := parseProcesses(lines)
	if len(procs) != 1 || procs[0].Name != "/usr/local/bin/server" {
		t.Fatalf("unexpected processes: %+v", procs)
	}
	if !procs[0].Running {
		t.Error("expected parsed process to be marked running")
	}
}

func TestParseListeningPorts(t *testing.T) {
	lines := []string{
		"State  Recv-Q Send-Q Local Address:Port Peer Address:Port",
		"LISTEN 0      128    *:8080             *:*",
		"LISTEN 0      128    0.0.0.0:3000       *:*",
	}
	ports := parseListeningPorts(lines)
	if len(ports) != 2 {
		t.Fatalf("expected 2 ports, got %v", ports)
	}
	if ports[0].Port != 8080 || ports[1].Port != 3000 {
		t.Errorf("unexpected port values: %+v", ports)
	}
	for _, p := range ports {
		if p.Proto != "tcp" || !p.Listening {
			t.Errorf("expected tcp/listening, got %+v", p)
		}
	}
}

func TestParseUser(t *testing.T) {
	evidence := parseUser("uid=10001(appuser) gid=10001(appuser) groups=10001(appuser)")
	if len(evidence) != 2 {
		t.Fatalf("expected uid and name evidence, got %+v", evidence)
	}
	if evidence[0].Spec != "10001" || !evidence[0].Present {
		t.Errorf("expected uid evidence 10001, got %+v", evidence[0])
	}
	if evidence[1].Spec != "appuser" || !evidence[1].Present {
		t.Errorf("expected name evidence appuser, got %+v", evidence[1])
	}
}

func TestParseUserEmptyLine(t *testing.T) {
	if evidence := parseUser(""); evidence != nil {
		t.Errorf("expected nil evidence for an empty line, got %+v", evidence)
	}
}
