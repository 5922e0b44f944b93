package exqscheduler_test

import (
	"errors"
	"testing"
	"time"

	exqscheduler "github.com/SavickyAnt/exq-scheduler"
)

const validYAML = `
storage_opts:
  namespace: exq-scheduler
  exq_namespace: exq
server_opts:
  missed_jobs_threshold_duration: 60000
  time_zone: "+05:30"
redis:
  spec:
    host: localhost
    port: 6379
schedules:
  send_report:
    description: "daily report"
    cron: "0 9 * * *"
    class: SendReportJob
    args: [1, 2]
    include_metadata: true
`

func TestLoadConfig_Valid(t *testing.T) {
	cfg, err := exqscheduler.LoadConfig([]byte(validYAML))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.StorageOpts.Namespace != "exq-scheduler" || cfg.StorageOpts.ExqNamespace != "exq" {
		t.Errorf("StorageOpts = %+v", cfg.StorageOpts)
	}
	if cfg.MissWindow() != 60*time.Second {
		t.Errorf("MissWindow() = %v, want 60s", cfg.MissWindow())
	}
	sc, ok := cfg.Schedules["send_report"]
	if !ok {
		t.Fatal("schedules.send_report missing")
	}
	if sc.Class != "SendReportJob" || !sc.IncludeMetadata {
		t.Errorf("send_report = %+v", sc)
	}
}

func TestLoadConfig_DefaultsAppliedWhenZero(t *testing.T) {
	cfg, err := exqscheduler.LoadConfig([]byte(`
storage_opts:
  namespace: a
  exq_namespace: b
`))
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.MissWindow() != 100*time.Second {
		t.Errorf("MissWindow() = %v, want default 100s", cfg.MissWindow())
	}
	if cfg.Redis.Spec.Backoff.InitialMS != 1000 || cfg.Redis.Spec.Backoff.MaxMS != 1000 {
		t.Errorf("Backoff = %+v, want 1000/1000 defaults", cfg.Redis.Spec.Backoff)
	}
}

func TestLoadConfig_RejectsUnknownKeys(t *testing.T) {
	_, err := exqscheduler.LoadConfig([]byte(`
storage_opts:
  namespace: a
  exq_namespace: b
typo_field: true
`))
	if err == nil {
		t.Fatal("expected an error for an unknown top-level key")
	}
}

func TestLoadConfig_RejectsSameNamespace(t *testing.T) {
	_, err := exqscheduler.LoadConfig([]byte(`
storage_opts:
  namespace: shared
  exq_namespace: shared
`))
	if !errors.Is(err, exqscheduler.ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestLoadConfig_RejectsMissingScheduleFields(t *testing.T) {
	_, err := exqscheduler.LoadConfig([]byte(`
storage_opts:
  namespace: a
  exq_namespace: b
schedules:
  broken:
    description: "missing cron and class"
`))
	if !errors.Is(err, exqscheduler.ErrConfigInvalid) {
		t.Errorf("err = %v, want ErrConfigInvalid", err)
	}
}

func TestParseTZOffset(t *testing.T) {
	cases := map[string]time.Duration{
		"":       0,
		"UTC":    0,
		"Z":      0,
		"+05:30": 5*time.Hour + 30*time.Minute,
		"-08:00": -8 * time.Hour,
		"+00:00": 0,
	}
	for input, want := range cases {
		got, err := exqscheduler.ParseTZOffset(input)
		if err != nil {
			t.Errorf("ParseTZOffset(%q): %v", input, err)
			continue
		}
		if got != want {
			t.Errorf("ParseTZOffset(%q) = %v, want %v", input, got, want)
		}
	}
}

func TestParseTZOffset_RejectsMalformed(t *testing.T) {
	for _, input := range []string{"05:30", "+25:00", "+05:99", "nonsense"} {
		if _, err := exqscheduler.ParseTZOffset(input); err == nil {
			t.Errorf("ParseTZOffset(%q): expected error", input)
		}
	}
}
