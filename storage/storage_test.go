package storage_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"

	"github.com/SavickyAnt/exq-scheduler/job"
	redisgw "github.com/SavickyAnt/exq-scheduler/redis"
	"github.com/SavickyAnt/exq-scheduler/schedule"
	"github.com/SavickyAnt/exq-scheduler/storage"
)

func newLayer(t *testing.T) (*storage.Layer, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	gw := redisgw.New(client)
	return storage.New(gw, "sched", "exq"), client
}

func newSchedule(t *testing.T, name, cronExpr string, opts ...schedule.Option) *schedule.Schedule {
	t.Helper()
	tmpl := job.New("SendEmailJob", job.WithArgs(1, 2))
	s, err := schedule.New(name, "desc", cronExpr, tmpl, opts...)
	if err != nil {
		t.Fatalf("schedule.New: %v", err)
	}
	return s
}

func TestPersistSchedule_IsIdempotent(t *testing.T) {
	l, client := newLayer(t)
	ctx := context.Background()
	s := newSchedule(t, "s1", "* * * * *")

	if err := l.PersistSchedule(ctx, s); err != nil {
		t.Fatalf("PersistSchedule: %v", err)
	}
	first, err := client.HGet(ctx, "sched:schedules", "s1").Result()
	if err != nil {
		t.Fatalf("HGet: %v", err)
	}

	if err := l.PersistSchedule(ctx, s); err != nil {
		t.Fatalf("PersistSchedule (second call): %v", err)
	}
	second, err := client.HGet(ctx, "sched:schedules", "s1").Result()
	if err != nil {
		t.Fatalf("HGet: %v", err)
	}

	if first != second {
		t.Errorf("persisted definition changed across idempotent calls:\n%q\n%q", first, second)
	}
}

func TestLoadSchedules_RoundTrip(t *testing.T) {
	l, _ := newLayer(t)
	ctx := context.Background()
	s := newSchedule(t, "s1", "*/5 * * * *", schedule.WithIncludeMetadata(true))

	if err := l.PersistSchedule(ctx, s); err != nil {
		t.Fatalf("PersistSchedule: %v", err)
	}

	loaded, err := l.LoadSchedules(ctx)
	if err != nil {
		t.Fatalf("LoadSchedules: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("got %d schedules, want 1", len(loaded))
	}
	if loaded[0].Name() != "s1" || loaded[0].Cron() != "*/5 * * * *" || !loaded[0].IncludeMetadata() {
		t.Errorf("loaded schedule mismatch: %+v", loaded[0])
	}
}

func TestIsEnabled_DefaultsTrueWhenMissing(t *testing.T) {
	l, _ := newLayer(t)
	enabled, err := l.IsEnabled(context.Background(), "never-persisted")
	if err != nil {
		t.Fatalf("IsEnabled: %v", err)
	}
	if !enabled {
		t.Error("IsEnabled for a missing state entry = false, want true (P2)")
	}
}

func TestEnqueue_SecondCallForSameFiringIsNoOp(t *testing.T) {
	l, client := newLayer(t)
	ctx := context.Background()
	s := newSchedule(t, "s1", "* * * * *")
	firing := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sj := s.GetJobs(schedule.TimeRange{Start: firing, End: firing.Add(time.Minute)})[0]

	first, err := l.Enqueue(ctx, s, sj, firing)
	if err != nil || !first {
		t.Fatalf("first Enqueue = (%v, %v), want (true, nil)", first, err)
	}
	second, err := l.Enqueue(ctx, s, sj, firing)
	if err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	if second {
		t.Error("second Enqueue for the same (job, firing) pair claimed the lock again")
	}

	n, err := client.LLen(ctx, "exq:queue:default").Result()
	if err != nil || n != 1 {
		t.Fatalf("LLen(exq:queue:default) = (%d, %v), want (1, nil) — P1 requires exactly one LPUSH", n, err)
	}
}

func TestEnqueue_RecordsTimesRegardlessOfOutcome(t *testing.T) {
	l, client := newLayer(t)
	ctx := context.Background()
	s := newSchedule(t, "s1", "* * * * *")
	firing := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sj := s.GetJobs(schedule.TimeRange{Start: firing, End: firing.Add(time.Minute)})[0]

	if _, err := l.Enqueue(ctx, s, sj, firing); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if _, err := client.HGet(ctx, "sched:last_runs", "s1").Result(); err != nil {
		t.Fatalf("last_runs not recorded: %v", err)
	}
	if _, err := client.HGet(ctx, "sched:first_runs", "s1").Result(); err != nil {
		t.Fatalf("first_runs not recorded: %v", err)
	}

	if _, err := l.Enqueue(ctx, s, sj, firing.Add(time.Hour)); err != nil {
		t.Fatalf("second Enqueue: %v", err)
	}
	firstRun, err := client.HGet(ctx, "sched:first_runs", "s1").Result()
	if err != nil {
		t.Fatalf("HGet first_runs: %v", err)
	}
	if firstRun == "" {
		t.Fatal("first_runs cleared on second call, want it preserved")
	}
}

// TestEnqueue_CrossReplicaDedup_IndependentlyConstructedSchedules exercises
// the scenario two single-Schedule tests above cannot: two replicas, each
// with its own Layer, bootstrapping its own Schedule/Job from the same
// config independently (so each gets its own random job.New template JID),
// racing to enqueue the same (schedule, firing) pair against the same
// Redis. Exactly one must win the lock and exactly one LPUSH must land —
// the headline at-most-once guarantee this spec exists to provide.
func TestEnqueue_CrossReplicaDedup_IndependentlyConstructedSchedules(t *testing.T) {
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	newReplicaLayer := func() *storage.Layer {
		return storage.New(redisgw.New(client), "sched", "exq")
	}
	buildSchedule := func(t *testing.T) *schedule.Schedule {
		t.Helper()
		// Fresh job.New call per "replica" — a fresh random JID each time,
		// exactly as two independently-bootstrapped processes would do.
		tmpl := job.New("SendEmailJob", job.WithArgs(1, 2))
		s, err := schedule.New("s1", "desc", "* * * * *", tmpl)
		if err != nil {
			t.Fatalf("schedule.New: %v", err)
		}
		return s
	}

	replicaA := newReplicaLayer()
	replicaB := newReplicaLayer()
	scheduleA := buildSchedule(t)
	scheduleB := buildSchedule(t)

	firing := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tr := schedule.TimeRange{Start: firing, End: firing.Add(time.Minute)}
	sjA := scheduleA.GetJobs(tr)[0]
	sjB := scheduleB.GetJobs(tr)[0]

	if sjA.Job.JID != sjB.Job.JID {
		t.Fatalf("JIDs diverged across independently-constructed replicas: %q vs %q", sjA.Job.JID, sjB.Job.JID)
	}
	encodedA, err := sjA.Job.Encode()
	if err != nil {
		t.Fatalf("encode A: %v", err)
	}
	encodedB, err := sjB.Job.Encode()
	if err != nil {
		t.Fatalf("encode B: %v", err)
	}
	if string(encodedA) != string(encodedB) {
		t.Fatalf("encoded job bytes diverged across replicas:\n%s\n%s", encodedA, encodedB)
	}

	ctx := context.Background()
	firstAcquired, err := replicaA.Enqueue(ctx, scheduleA, sjA, firing)
	if err != nil {
		t.Fatalf("replica A Enqueue: %v", err)
	}
	secondAcquired, err := replicaB.Enqueue(ctx, scheduleB, sjB, firing)
	if err != nil {
		t.Fatalf("replica B Enqueue: %v", err)
	}
	if !(firstAcquired && !secondAcquired) {
		t.Fatalf("exactly one replica must win the CAS, got (A=%v, B=%v)", firstAcquired, secondAcquired)
	}

	n, err := client.LLen(ctx, "exq:queue:default").Result()
	if err != nil || n != 1 {
		t.Fatalf("LLen(exq:queue:default) = (%d, %v), want (1, nil)", n, err)
	}
}

func TestEnqueueRange_CountsEachFiringInRange(t *testing.T) {
	l, client := newLayer(t)
	ctx := context.Background()
	s := newSchedule(t, "s1", "* * * * *")

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 1, 1, 0, 5, 0, 0, time.UTC)
	count, contended, err := l.EnqueueRange(ctx, s, schedule.TimeRange{Start: start, End: end}, end)
	if err != nil {
		t.Fatalf("EnqueueRange: %v", err)
	}
	if count != 5 {
		t.Fatalf("enqueued %d jobs, want 5", count)
	}
	if contended != 0 {
		t.Fatalf("contended = %d, want 0", contended)
	}

	n, err := client.LLen(ctx, "exq:queue:default").Result()
	if err != nil || n != 5 {
		t.Fatalf("LLen(exq:queue:default) = (%d, %v), want (5, nil)", n, err)
	}
}
