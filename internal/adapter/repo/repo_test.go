package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"affiliatescout/internal/domain"
	"affiliatescout/internal/sqlinline"
)

func TestJobCreateAssignsIDAndEncodesLists(t *testing.T) {
	now := time.Now()
	sql := &stubSQL{row: valuesRow(now, now)}
	job := &domain.SearchJob{OwnerID: "owner-1", Topics: []string{"hundenapf"}}
	if err := NewJobRepository(sql).Create(context.Background(), job); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := uuid.Parse(job.ID); err != nil {
		t.Fatalf("expected generated uuid, got %q", job.ID)
	}
	if job.Status != domain.JobStatusPending || !job.CreatedAt.Equal(now) {
		t.Fatalf("unexpected job %+v", job)
	}
	args := sql.calls[0].args
	if string(args[2].([]byte)) != `["hundenapf"]` {
		t.Fatalf("unexpected topics %s", args[2])
	}
	if string(args[3].([]byte)) != `[]` {
		t.Fatalf("nil competitors should encode as [], got %s", args[3])
	}
}

func TestJobGetByID(t *testing.T) {
	id := uuid.NewString()
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	started := created.Add(time.Minute)
	sql := &stubSQL{row: valuesRow(
		id, "owner-1",
		[]byte(`["napf"]`), []byte(`["guffles.com"]`), []byte(`["web","youtube"]`),
		[]byte(`[{"text":"napf test","platform":"web","source_type":"keyword","source_value":"napf"}]`),
		[]byte(`{"target_country":"DE","affiliate_signals":true}`),
		"run-1", "ds-1", "processing", "", 0, []byte(nil),
		created, created, &started, (*time.Time)(nil),
	)}
	job, err := NewJobRepository(sql).GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if job.Status != domain.JobStatusProcessing || job.RunID != "run-1" {
		t.Fatalf("unexpected job %+v", job)
	}
	if len(job.Platforms) != 2 || job.Platforms[1] != domain.PlatformYouTube {
		t.Fatalf("unexpected platforms %v", job.Platforms)
	}
	if len(job.Queries) != 1 || job.Queries[0].SourceType != domain.SourceKeyword {
		t.Fatalf("unexpected queries %+v", job.Queries)
	}
	if job.Settings.TargetCountry != "DE" || !job.Settings.AffiliateSignals {
		t.Fatalf("unexpected settings %+v", job.Settings)
	}
	if job.ProcessingStartedAt == nil || !job.ProcessingStartedAt.Equal(started) {
		t.Fatalf("unexpected processing start %v", job.ProcessingStartedAt)
	}
}

func TestJobGetByIDNotFound(t *testing.T) {
	repo := NewJobRepository(&stubSQL{row: errRow(pgx.ErrNoRows)})
	if _, err := repo.GetByID(context.Background(), uuid.NewString()); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	sql := &stubSQL{}
	if _, err := NewJobRepository(sql).GetByID(context.Background(), "not-a-uuid"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for malformed id, got %v", err)
	}
	if len(sql.calls) != 0 {
		t.Fatal("malformed id should not reach the database")
	}
}

func TestJobTransition(t *testing.T) {
	count := 3
	stale := time.Now()
	sql := &stubSQL{tag: pgconn.NewCommandTag("UPDATE 1")}
	won, err := NewJobRepository(sql).Transition(context.Background(), "job-1", domain.Transition{
		From:         []domain.JobStatus{domain.JobStatusRunning},
		To:           domain.JobStatusProcessing,
		ResultsCount: &count,
		StaleBefore:  &stale,
	})
	if err != nil || !won {
		t.Fatalf("expected win, got %v %v", won, err)
	}
	c := sql.calls[0]
	if c.query != sqlinline.QTransitionSearchJob {
		t.Fatal("unexpected query")
	}
	if c.args[1] != "processing" {
		t.Fatalf("unexpected target %v", c.args[1])
	}
	if from := c.args[7].([]string); len(from) != 1 || from[0] != "running" {
		t.Fatalf("unexpected from %v", c.args[7])
	}
	if c.args[6].([]byte) != nil {
		t.Fatal("empty result json should be sent as NULL")
	}

	lost := &stubSQL{tag: pgconn.NewCommandTag("UPDATE 0")}
	won, err = NewJobRepository(lost).Transition(context.Background(), "job-1", domain.Transition{To: domain.JobStatusDone})
	if err != nil || won {
		t.Fatalf("expected lost transition, got %v %v", won, err)
	}
}

func TestAffiliateInsertConflictIsNoOp(t *testing.T) {
	repo := NewAffiliateRepository(&stubSQL{tag: pgconn.NewCommandTag("INSERT 0 0")})
	inserted, err := repo.Insert(context.Background(), &domain.Affiliate{OwnerID: "o", JobID: uuid.NewString(), Link: "https://a.example"})
	if err != nil || inserted {
		t.Fatalf("expected silent no-op, got %v %v", inserted, err)
	}

	raced := NewAffiliateRepository(&stubSQL{err: &pgconn.PgError{Code: "23505"}})
	inserted, err = raced.Insert(context.Background(), &domain.Affiliate{OwnerID: "o", Link: "https://a.example"})
	if err != nil || inserted {
		t.Fatalf("expected unique violation to be swallowed, got %v %v", inserted, err)
	}

	sql := &stubSQL{tag: pgconn.NewCommandTag("INSERT 0 1")}
	a := &domain.Affiliate{OwnerID: "o", Link: "https://b.example", Metadata: &domain.ProfileMetadata{Handle: "chef"}}
	inserted, err = NewAffiliateRepository(sql).Insert(context.Background(), a)
	if err != nil || !inserted {
		t.Fatalf("expected insert, got %v %v", inserted, err)
	}
	if string(sql.calls[0].args[12].([]byte)) != `{"handle":"chef"}` {
		t.Fatalf("unexpected metadata %s", sql.calls[0].args[12])
	}
}

func TestAffiliateInsertConflictFromSameJobCounts(t *testing.T) {
	jobID := uuid.NewString()
	sql := &stubSQL{tag: pgconn.NewCommandTag("INSERT 0 0"), row: valuesRow("aff-1")}
	a := &domain.Affiliate{OwnerID: "o", JobID: jobID, Link: "https://a.example"}
	inserted, err := NewAffiliateRepository(sql).Insert(context.Background(), a)
	if err != nil || !inserted {
		t.Fatalf("expected the earlier row of this job to count, got %v %v", inserted, err)
	}
	if a.ID != "aff-1" {
		t.Fatalf("expected stored id, got %q", a.ID)
	}
	if len(sql.calls) != 2 || sql.calls[1].query != sqlinline.QSelectAffiliateIDForJob || sql.calls[1].args[2] != jobID {
		t.Fatalf("unexpected calls %+v", sql.calls)
	}

	failing := &stubSQL{tag: pgconn.NewCommandTag("INSERT 0 0"), row: errRow(errors.New("conn reset"))}
	if _, err := NewAffiliateRepository(failing).Insert(context.Background(), &domain.Affiliate{OwnerID: "o", JobID: jobID, Link: "https://a.example"}); err == nil {
		t.Fatal("expected lookup error")
	}
}

func TestAffiliateListByOwner(t *testing.T) {
	created := time.Now()
	sql := &stubSQL{rows: &sliceRows{data: [][]any{
		{"a1", "o", "j1", "https://yt.example", "youtube.com", "youtube", "t", "s", "keyword", "napf", 40, "de", []byte(`{"followers":12}`), created},
		{"a2", "o", "j1", "https://blog.example", "blog.example", "web", "t", "s", "competitor", "guffles.com", 0, "", []byte(nil), created},
	}}}
	out, err := NewAffiliateRepository(sql).ListByOwner(context.Background(), "o", 0, -1)
	if err != nil {
		t.Fatalf("ListByOwner error: %v", err)
	}
	if len(out) != 2 || out[0].Metadata == nil || out[0].Metadata.Followers != 12 || out[1].Metadata != nil {
		t.Fatalf("unexpected affiliates %+v", out)
	}
	if out[1].SourceType != domain.SourceCompetitor {
		t.Fatalf("unexpected source type %q", out[1].SourceType)
	}
	if sql.calls[0].args[1] != 50 || sql.calls[0].args[2] != 0 {
		t.Fatalf("expected default paging, got %v", sql.calls[0].args)
	}
}

func TestCreditLedger(t *testing.T) {
	ctx := context.Background()

	balance, err := NewCreditLedger(&stubSQL{row: errRow(pgx.ErrNoRows)}).Balance(ctx, "o", "affiliate_search")
	if err != nil || balance != 0 {
		t.Fatalf("expected zero balance, got %d %v", balance, err)
	}

	ok, err := NewCreditLedger(&stubSQL{row: valuesRow(4)}).Consume(ctx, "o", "affiliate_search", "search_job", "j1")
	if err != nil || !ok {
		t.Fatalf("expected consume, got %v %v", ok, err)
	}

	ok, err = NewCreditLedger(&stubSQL{row: errRow(&pgconn.PgError{Code: "23505"})}).Consume(ctx, "o", "affiliate_search", "search_job", "j1")
	if err != nil || ok {
		t.Fatalf("expected repeated reference no-op, got %v %v", ok, err)
	}

	_, err = NewCreditLedger(&stubSQL{row: errRow(pgx.ErrNoRows)}).Consume(ctx, "o", "affiliate_search", "search_job", "j2")
	if !errors.Is(err, domain.ErrQuotaExceeded) {
		t.Fatalf("expected ErrQuotaExceeded, got %v", err)
	}

	if _, err := NewCreditLedger(&stubSQL{}).Grant(ctx, "o", "affiliate_search", 0); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	balance, err = NewCreditLedger(&stubSQL{row: valuesRow(10)}).Grant(ctx, "o", "affiliate_search", 10)
	if err != nil || balance != 10 {
		t.Fatalf("expected balance 10, got %d %v", balance, err)
	}
}

func TestSettingsRepository(t *testing.T) {
	ctx := context.Background()
	if _, err := NewSettingsRepository(&stubSQL{row: errRow(pgx.ErrNoRows)}).GetByOwner(ctx, "o"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	now := time.Now()
	s, err := NewSettingsRepository(&stubSQL{row: valuesRow("o", "DE", "German", "bedrop.de", []byte(`["guffles.com"]`), now)}).GetByOwner(ctx, "o")
	if err != nil {
		t.Fatalf("GetByOwner error: %v", err)
	}
	if s.TargetLanguage != "German" || len(s.Competitors) != 1 {
		t.Fatalf("unexpected settings %+v", s)
	}

	sql := &stubSQL{}
	if err := NewSettingsRepository(sql).Upsert(ctx, &domain.Settings{OwnerID: "o", TargetCountry: " de "}); err != nil {
		t.Fatalf("Upsert error: %v", err)
	}
	if sql.calls[0].args[1] != "DE" {
		t.Fatalf("expected normalized country, got %v", sql.calls[0].args[1])
	}
}

func TestScheduleRepository(t *testing.T) {
	ctx := context.Background()
	next := time.Now().Add(time.Hour)
	sql := &stubSQL{rows: &sliceRows{data: [][]any{
		{"s1", "o", []byte(`["napf"]`), []byte(`[]`), []byte(`["web"]`), true, 24, next, true},
	}}}
	due, err := NewScheduleRepository(sql).ListDue(ctx, time.Now(), 5)
	if err != nil {
		t.Fatalf("ListDue error: %v", err)
	}
	if len(due) != 1 || due[0].IntervalHours != 24 || due[0].Platforms[0] != domain.PlatformWeb {
		t.Fatalf("unexpected schedules %+v", due)
	}

	missing := NewScheduleRepository(&stubSQL{tag: pgconn.NewCommandTag("UPDATE 0")})
	if err := missing.Reschedule(ctx, "s1", next); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	create := &stubSQL{}
	s := &domain.Schedule{OwnerID: "o", Topics: []string{"napf"}, IntervalHours: 24, NextRunAt: next, Enabled: true}
	if err := NewScheduleRepository(create).Create(ctx, s); err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if s.ID == "" || create.calls[0].query != sqlinline.QInsertSchedule {
		t.Fatalf("unexpected create %+v", s)
	}
}
