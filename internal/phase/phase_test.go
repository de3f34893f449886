package phase

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/bgricker/fleetctl/internal/config"
	"github.com/bgricker/fleetctl/internal/fleet"
	"github.com/bgricker/fleetctl/internal/remote"
	"github.com/bgricker/fleetctl/internal/remote/remotetest"
	"github.com/bgricker/fleetctl/internal/report"
)

var fixedNow = time.Date(2024, 11, 14, 8, 30, 0, 0, time.UTC)

func newEnv(t *testing.T, size int, handler func(remote.Endpoint, remote.Operation) remote.Result) (Env, *remotetest.Executor) {
	t.Helper()
	cfg := config.Default()
	cfg.Fleet.Size = size
	cfg.Paths.DataDir = t.TempDir()
	exec := &remotetest.Executor{Handler: handler}
	env := Env{
		Config:   cfg,
		Registry: fleet.NewRegistry(size, fleet.DefaultNaming()),
		Exec:     exec,
		Log:      zerolog.Nop(),
		Now:      func() time.Time { return fixedNow },
	}
	return env, exec
}

func host(n int) string {
	return fleet.DefaultNaming().Endpoint(n).Host
}

func state(t *testing.T, env Env, n int) fleet.State {
	t.Helper()
	d, err := env.Registry.Get(n)
	if err != nil {
		t.Fatalf("get device %d: %v", n, err)
	}
	return d.State
}

func resultFor(rep report.PhaseReport, hostname, step string) (report.DeviceResult, bool) {
	for _, r := range rep.Results {
		if r.Hostname == hostname && r.Step == step {
			return r, true
		}
	}
	return report.DeviceResult{}, false
}

func TestDiscoveryExcludesOfflineDevices(t *testing.T) {
	env, _ := newEnv(t, 3, nil)
	ledgerPath := filepath.Join(t.TempDir(), "connections.csv")
	d := &Discovery{
		Env:      env,
		Prober:   &remotetest.Prober{Offline: map[string]bool{host(2): true}},
		Resolver: remotetest.Resolver{Addresses: map[string]string{host(1): "10.0.0.1"}},
		Ledger:   ledgerPath,
	}

	rep, err := d.Run(context.Background(), env.Registry.Devices())
	if err != nil {
		t.Fatalf("run discovery: %v", err)
	}
	if len(rep.Failed) != 1 || rep.Failed[0] != host(2) {
		t.Fatalf("expected only %s to fail, got %v", host(2), rep.Failed)
	}
	if got := state(t, env, 2); got != fleet.StateOffline {
		t.Fatalf("expected device 2 offline, got %s", got)
	}
	if got := state(t, env, 1); got != fleet.StateOnline {
		t.Fatalf("expected device 1 online, got %s", got)
	}
	eligible := env.Registry.Eligible()
	if len(eligible) != 2 || eligible[0].Ordinal != 1 || eligible[1].Ordinal != 3 {
		t.Fatalf("expected devices 1 and 3 eligible, got %v", eligible)
	}
	r, _ := resultFor(rep, host(2), "")
	if r.Kind != report.KindUnreachable {
		t.Fatalf("expected unreachable kind, got %q", r.Kind)
	}

	data, err := os.ReadFile(ledgerPath)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	want := strings.Join([]string{
		"Date,Time,Hostname,Status,IPAddress",
		"2024-11-14,08:30:00,pi1.wifi.etsu.edu,Online,10.0.0.1",
		"2024-11-14,08:30:00,pi2.wifi.etsu.edu,Offline,",
		"2024-11-14,08:30:00,pi3.wifi.etsu.edu,Online,Unknown",
	}, "\n") + "\n"
	if string(data) != want {
		t.Fatalf("expected ledger\n%s\ngot\n%s", want, data)
	}
}

func TestDiscoveryAppendsToExistingLedger(t *testing.T) {
	ledgerPath := filepath.Join(t.TempDir(), "connections.csv")
	for i := 0; i < 2; i++ {
		env, _ := newEnv(t, 4, nil)
		d := &Discovery{Env: env, Prober: &remotetest.Prober{}, Resolver: remotetest.Resolver{}, Ledger: ledgerPath}
		if _, err := d.Run(context.Background(), env.Registry.Devices()); err != nil {
			t.Fatalf("run %d: %v", i, err)
		}
	}
	data, err := os.ReadFile(ledgerPath)
	if err != nil {
		t.Fatalf("read ledger: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 9 {
		t.Fatalf("expected header plus 8 rows, got %d lines", len(lines))
	}
	headers := 0
	for _, l := range lines {
		if strings.HasPrefix(l, "Date,") {
			headers++
		}
	}
	if headers != 1 {
		t.Fatalf("expected a single header, got %d", headers)
	}
}

func TestDiscoveryLedgerFailureStillReports(t *testing.T) {
	env, _ := newEnv(t, 2, nil)
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatalf("write blocker: %v", err)
	}
	d := &Discovery{Env: env, Prober: &remotetest.Prober{}, Ledger: filepath.Join(blocker, "ledger.csv")}
	rep, err := d.Run(context.Background(), env.Registry.Devices())
	if err == nil {
		t.Fatalf("expected ledger error")
	}
	if len(rep.Succeeded) != 2 {
		t.Fatalf("expected both devices online, got %v", rep.Succeeded)
	}
}

func TestPreflightChecksCameraAndSensor(t *testing.T) {
	env, exec := newEnv(t, 2, func(target remote.Endpoint, op remote.Operation) remote.Result {
		switch {
		case remotetest.Contains(op, "lsusb"):
			if target.Host == host(2) {
				return remotetest.OK("Bus 001 Device 001: ID 1d6b:0002 Linux Foundation 2.0 root hub")
			}
			return remotetest.OK("Bus 001 Device 004: ID 2560:c128 e-con See3CAM Camera")
		case remotetest.Contains(op, "test_ir_sensor.py"):
			return remotetest.OK("IR sensor OK")
		}
		return remotetest.Fail("unexpected")
	})
	p := &Preflight{Env: env}
	rep := p.Run(context.Background(), env.Registry.Devices())

	if len(rep.Failed) != 1 || rep.Failed[0] != host(2) {
		t.Fatalf("expected %s to fail preflight, got %v", host(2), rep.Failed)
	}
	r, ok := resultFor(rep, host(2), StepCamera)
	if !ok || r.Kind != report.KindSelfTestFailed {
		t.Fatalf("expected camera selftest failure, got %+v", r)
	}
	if len(env.Registry.Eligible()) != 2 {
		t.Fatalf("expected preflight to never exclude devices")
	}
	if got := exec.Count(remote.KindShell); got != 4 {
		t.Fatalf("expected 4 checks, got %d", got)
	}
	for _, c := range exec.CallsFor(host(1)) {
		if remotetest.Contains(c.Op, "test_ir_sensor.py") && c.Timeout != env.Config.Timeouts.SelfTest {
			t.Fatalf("expected self-test timeout %s, got %s", env.Config.Timeouts.SelfTest, c.Timeout)
		}
	}
}

func TestPreflightSkipsCameraInReducedSet(t *testing.T) {
	env, exec := newEnv(t, 1, func(remote.Endpoint, remote.Operation) remote.Result {
		return remotetest.OK("sensor fault")
	})
	env.Config.Reduced = true
	p := &Preflight{Env: env}
	rep := p.Run(context.Background(), env.Registry.Devices())

	for _, c := range exec.Calls() {
		if remotetest.Contains(c.Op, "lsusb") {
			t.Fatalf("expected no camera check in reduced set")
		}
	}
	r, ok := resultFor(rep, host(1), StepSelfTest)
	if !ok || !r.Failed() {
		t.Fatalf("expected self-test failure on unexpected output, got %+v", r)
	}
}

func TestProvisionIsIdempotent(t *testing.T) {
	env, exec := newEnv(t, 3, func(remote.Endpoint, remote.Operation) remote.Result {
		return remotetest.OK("Exists\n")
	})
	p := &Provision{Env: env, Programs: env.Config.ActivePrograms()}
	rep := p.Run(context.Background(), env.Registry.Devices())

	if got := exec.Count(remote.KindPush); got != 0 {
		t.Fatalf("expected no pushes, got %d", got)
	}
	if len(rep.Failed) != 0 {
		t.Fatalf("expected no failures, got %v", rep.Failed)
	}
	if got := rep.Count(report.Skipped); got != 6 {
		t.Fatalf("expected 6 skipped programs, got %d", got)
	}
	for n := 1; n <= 3; n++ {
		if got := state(t, env, n); got != fleet.StateProvisioned {
			t.Fatalf("expected device %d provisioned, got %s", n, got)
		}
	}
}

func TestProvisionSecondRunPushesNothing(t *testing.T) {
	var mu sync.Mutex
	present := map[string]bool{}
	env, exec := newEnv(t, 2, func(target remote.Endpoint, op remote.Operation) remote.Result {
		mu.Lock()
		defer mu.Unlock()
		switch op.Kind {
		case remote.KindPush:
			present[target.Host+":"+op.Remote] = true
			return remotetest.OK("")
		case remote.KindShell:
			fields := strings.Fields(op.CommandLine())
			if len(fields) > 2 && present[target.Host+":"+fields[2]] {
				return remotetest.OK("Exists")
			}
			return remotetest.OK("Missing")
		}
		return remotetest.OK("")
	})
	p := &Provision{Env: env, Programs: env.Config.ActivePrograms()}

	first := p.Run(context.Background(), env.Registry.Devices())
	if got := exec.Count(remote.KindPush); got != 4 {
		t.Fatalf("expected 4 pushes on the first run, got %d", got)
	}
	if len(first.Succeeded) != 2 {
		t.Fatalf("expected both devices provisioned, got %v", first.Succeeded)
	}

	exec.Reset()
	second := p.Run(context.Background(), env.Registry.Devices())
	if got := exec.Count(remote.KindPush); got != 0 {
		t.Fatalf("expected no pushes on the second run, got %d", got)
	}
	if got := second.Count(report.Skipped); got != 4 {
		t.Fatalf("expected 4 skipped programs, got %d", got)
	}
	if len(second.Failed) != 0 {
		t.Fatalf("expected no failures, got %v", second.Failed)
	}
	for n := 1; n <= 2; n++ {
		if got := state(t, env, n); got != fleet.StateProvisioned {
			t.Fatalf("expected device %d provisioned, got %s", n, got)
		}
	}
}

func TestProvisionPushesMissingPrograms(t *testing.T) {
	env, exec := newEnv(t, 2, func(target remote.Endpoint, op remote.Operation) remote.Result {
		if op.Kind != remote.KindShell {
			return remotetest.OK("")
		}
		// device 2 cannot even answer the probe; it still gets a push
		if target.Host == host(2) {
			return remotetest.Fail("Connection reset by peer")
		}
		return remotetest.OK("Missing")
	})
	env.Config.Reduced = true
	p := &Provision{Env: env, Programs: env.Config.ActivePrograms()}
	rep := p.Run(context.Background(), env.Registry.Devices())

	if got := exec.Count(remote.KindPush); got != 2 {
		t.Fatalf("expected 2 pushes, got %d", got)
	}
	calls := exec.CallsFor(host(1))
	if len(calls) != 2 {
		t.Fatalf("expected probe then push on device 1, got %d calls", len(calls))
	}
	if want := "test -f /home/pi1/IR_Recording.py && echo Exists || echo Missing"; calls[0].Op.CommandLine() != want {
		t.Fatalf("expected probe %q, got %q", want, calls[0].Op.CommandLine())
	}
	push := calls[1].Op
	if push.Kind != remote.KindPush || push.Remote != "/home/pi1/IR_Recording.py" || push.Local != "/home/rpimain/Scripts/IR_Recording.py" {
		t.Fatalf("unexpected push %s", push)
	}
	if calls[1].Timeout != env.Config.Timeouts.Transfer {
		t.Fatalf("expected transfer timeout, got %s", calls[1].Timeout)
	}
	if len(rep.Succeeded) != 2 {
		t.Fatalf("expected both devices provisioned, got %v", rep.Succeeded)
	}
}

func TestProvisionFailureKeepsDeviceEligible(t *testing.T) {
	env, _ := newEnv(t, 2, func(target remote.Endpoint, op remote.Operation) remote.Result {
		if op.Kind == remote.KindPush && target.Host == host(1) {
			return remotetest.Fail("scp: /home/pi1: Permission denied")
		}
		return remotetest.OK("Missing")
	})
	p := &Provision{Env: env, Programs: env.Config.ActivePrograms()}
	rep := p.Run(context.Background(), env.Registry.Devices())

	if len(rep.Failed) != 1 || rep.Failed[0] != host(1) {
		t.Fatalf("expected %s to fail, got %v", host(1), rep.Failed)
	}
	r, _ := resultFor(rep, host(1), "IR_Recording")
	if r.Kind != report.KindTransferFailed {
		t.Fatalf("expected transfer_failed, got %q", r.Kind)
	}
	d, _ := env.Registry.Get(1)
	if !d.Eligible() || d.State != fleet.StatePending {
		t.Fatalf("expected device 1 eligible and not provisioned, got %s", d.State)
	}
	if len(d.Failures) != 2 || d.Failures[0].Kind != string(report.KindTransferFailed) {
		t.Fatalf("expected two recorded transfer failures, got %+v", d.Failures)
	}
}

func TestActivationLaunchesDetachedSessions(t *testing.T) {
	env, exec := newEnv(t, 1, nil)
	p := &Activate{Env: env, Programs: env.Config.ActivePrograms()}
	rep := p.Run(context.Background(), env.Registry.Devices())

	if len(rep.Succeeded) != 1 {
		t.Fatalf("expected activation to succeed, got %+v", rep)
	}
	calls := exec.Calls()
	if len(calls) != 2 {
		t.Fatalf("expected two launches, got %d", len(calls))
	}
	want := "screen -dmS IR_Recording_1 bash -c 'mkdir -p Logs; python3 IR_Recording.py > Logs/IR_Recording.log 2>&1'"
	if got := calls[0].Op.CommandLine(); got != want {
		t.Fatalf("expected launch\n%s\ngot\n%s", want, got)
	}
	if !remotetest.Contains(calls[1].Op, "CameraScript_1") {
		t.Fatalf("expected camera session, got %s", calls[1].Op)
	}
	if got := state(t, env, 1); got != fleet.StateActive {
		t.Fatalf("expected device active, got %s", got)
	}
}

func TestActivationPartialFailureKeepsSiblingSession(t *testing.T) {
	env, exec := newEnv(t, 1, func(target remote.Endpoint, op remote.Operation) remote.Result {
		if remotetest.Contains(op, "IR_Recording_1") {
			return remotetest.Fail("screen: cannot open terminal")
		}
		return remotetest.OK("")
	})
	act := &Activate{Env: env, Programs: env.Config.ActivePrograms()}
	rep := act.Run(context.Background(), env.Registry.Eligible())

	if got := rep.Count(report.Failure); got != 1 {
		t.Fatalf("expected exactly one failed launch, got %d", got)
	}
	r, _ := resultFor(rep, host(1), "IR_Recording")
	if r.Kind != report.KindLaunchFailed {
		t.Fatalf("expected launch_failed, got %q", r.Kind)
	}
	if r, _ := resultFor(rep, host(1), "CameraScript"); r.Failed() {
		t.Fatalf("expected camera session to start, got %+v", r)
	}
	d, _ := env.Registry.Get(1)
	if d.State != fleet.StateActive || !d.Eligible() {
		t.Fatalf("expected device active and eligible, got %s", d.State)
	}
	if len(d.Failures) != 1 || d.Failures[0].Kind != string(report.KindLaunchFailed) {
		t.Fatalf("expected one recorded launch failure, got %+v", d.Failures)
	}

	exec.Reset()
	col := &Collect{Env: env, Date: "2024-11-14"}
	if _, err := col.Run(context.Background(), env.Registry.Eligible()); err != nil {
		t.Fatalf("collect: %v", err)
	}
	if got := exec.Count(remote.KindPull); got != 1 {
		t.Fatalf("expected one pull from device 1, got %d", got)
	}
	if got := state(t, env, 1); got != fleet.StateCollected {
		t.Fatalf("expected device collected, got %s", got)
	}
}

func TestActivationFailureStillCollected(t *testing.T) {
	env, exec := newEnv(t, 3, func(target remote.Endpoint, op remote.Operation) remote.Result {
		if target.Host == host(3) && remotetest.Contains(op, "screen") {
			return remotetest.Fail("bash: screen: command not found")
		}
		return remotetest.OK("")
	})
	act := &Activate{Env: env, Programs: env.Config.ActivePrograms()}
	rep := act.Run(context.Background(), env.Registry.Eligible())

	r, _ := resultFor(rep, host(3), "IR_Recording")
	if r.Kind != report.KindLaunchFailed {
		t.Fatalf("expected launch_failed, got %q", r.Kind)
	}

	col := &Collect{Env: env, Date: "2024-11-14"}
	got, err := col.Run(context.Background(), env.Registry.Eligible())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if len(got.Report.Results) != 3 {
		t.Fatalf("expected collection from all 3 devices, got %d", len(got.Report.Results))
	}
	if len(exec.CallsFor(host(3))) != 3 {
		t.Fatalf("expected device 3 to be contacted for collection")
	}
	if s := state(t, env, 3); s != fleet.StateCollected {
		t.Fatalf("expected device 3 collected, got %s", s)
	}
}

func TestCollectionFetchesDatePattern(t *testing.T) {
	env, exec := newEnv(t, 2, func(target remote.Endpoint, op remote.Operation) remote.Result {
		if target.Host == host(2) {
			return remotetest.Fail("scp: No such file or directory")
		}
		name := "2024-11-14_" + target.User + ".csv"
		if err := os.WriteFile(filepath.Join(op.Local, name), []byte("t,v\n"), 0o644); err != nil {
			return remotetest.Fail(err.Error())
		}
		return remotetest.OK("")
	})
	col := &Collect{Env: env, Date: "2024-11-14", Archive: true}
	got, err := col.Run(context.Background(), env.Registry.Devices())
	if err != nil {
		t.Fatalf("collect: %v", err)
	}

	wantDir := filepath.Join(env.Config.Paths.DataDir, "2024-11-14")
	if got.Dir != wantDir {
		t.Fatalf("expected dir %s, got %s", wantDir, got.Dir)
	}
	calls := exec.CallsFor(host(1))
	if len(calls) != 1 || calls[0].Op.Remote != "/home/pi1/Data/2024-11-14*.csv" || calls[0].Op.Local != wantDir {
		t.Fatalf("unexpected pull %+v", calls)
	}
	if len(got.Files) != 1 || filepath.Base(got.Files[0]) != "2024-11-14_pi1.csv" {
		t.Fatalf("expected one collected file, got %v", got.Files)
	}
	r, _ := resultFor(got.Report, host(2), "")
	if !r.Failed() || r.Kind != report.KindTransferFailed || !strings.HasPrefix(r.Detail, "failed fetch") {
		t.Fatalf("expected failed fetch for device 2, got %+v", r)
	}
	if got.Archive != wantDir+".tar.zst" {
		t.Fatalf("expected archive next to dir, got %q", got.Archive)
	}
	if _, err := os.Stat(got.Archive); err != nil {
		t.Fatalf("stat archive: %v", err)
	}
}

func TestCollectionDefaultsToToday(t *testing.T) {
	env, exec := newEnv(t, 1, nil)
	col := &Collect{Env: env}
	if _, err := col.Run(context.Background(), env.Registry.Devices()); err != nil {
		t.Fatalf("collect: %v", err)
	}
	calls := exec.Calls()
	if len(calls) != 1 || !strings.HasSuffix(calls[0].Op.Remote, "/2024-11-14*.csv") {
		t.Fatalf("expected today's pattern, got %+v", calls)
	}
}

func TestTeardownTreatsNoMatchAsSuccess(t *testing.T) {
	env, exec := newEnv(t, 3, func(target remote.Endpoint, op remote.Operation) remote.Result {
		switch target.Host {
		case host(2):
			return remote.Result{Output: "", ExitCode: 1}
		case host(3):
			return remote.Result{Output: "ssh: connect to host pi3.wifi.etsu.edu port 22: No route to host", ExitCode: 255}
		}
		return remotetest.OK("")
	})
	td := &Teardown{Env: env, Programs: env.Config.Programs}
	rep := td.Run(context.Background(), env.Registry.Devices())

	if len(rep.Failed) != 1 || rep.Failed[0] != host(3) {
		t.Fatalf("expected only %s to fail, got %v", host(3), rep.Failed)
	}
	r, _ := resultFor(rep, host(2), "")
	if r.Detail != "no sessions running" {
		t.Fatalf("expected no sessions detail, got %q", r.Detail)
	}
	r, _ = resultFor(rep, host(3), "")
	if r.Kind != report.KindCleanupFailed {
		t.Fatalf("expected cleanup_failed, got %q", r.Kind)
	}
	if s := state(t, env, 2); s != fleet.StateReleased {
		t.Fatalf("expected device 2 released, got %s", s)
	}
	if s := state(t, env, 3); s == fleet.StateReleased {
		t.Fatalf("expected device 3 not released")
	}
	want := `pkill -f '^SCREEN -dmS (IR_Recording|CameraScript)_1( |$)'`
	if got := exec.CallsFor(host(1))[0].Op.CommandLine(); got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}

func TestPhasesHonorConcurrencyCeiling(t *testing.T) {
	env, exec := newEnv(t, 20, nil)
	env.Config.Concurrency = 4
	exec.Delay = 5 * time.Millisecond

	p := &Provision{Env: env, Programs: env.Config.ActivePrograms()}
	rep := p.Run(context.Background(), env.Registry.Devices())

	if len(rep.Succeeded) != 20 {
		t.Fatalf("expected 20 devices provisioned, got %d", len(rep.Succeeded))
	}
	if peak := exec.Peak(); peak > 4 || peak < 1 {
		t.Fatalf("expected at most 4 concurrent calls, got %d", peak)
	}
	for i, r := range rep.Results {
		want := host(i/2 + 1)
		if r.Hostname != want {
			t.Fatalf("expected results in fleet order, result %d is %s", i, r.Hostname)
		}
	}
}

func TestSessionPattern(t *testing.T) {
	got := SessionPattern(config.Default().Programs, 3)
	if want := "^SCREEN -dmS (IR_Recording|CameraScript)_3( |$)"; got != want {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
