package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/healthspend/apiserver/internal/apperr"
	"github.com/healthspend/apiserver/internal/auth"
	"github.com/healthspend/apiserver/internal/docstore"
	"github.com/healthspend/apiserver/internal/llm"
	"github.com/healthspend/apiserver/internal/mq"
	"github.com/healthspend/apiserver/internal/storage"
	"github.com/healthspend/apiserver/internal/store"
	"github.com/healthspend/apiserver/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeCompleter struct {
	reply   string
	err     error
	calls   int
	system  string
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, system, prompt string) (string, error) {
	f.calls++
	f.system = system
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []mq.Event
	err    error
}

func (p *recordingPublisher) PublishEvent(_ context.Context, _ string, event mq.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return p.err
}

func (p *recordingPublisher) eventTypes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newAuthService(t *testing.T) *AuthService {
	t.Helper()
	db := docstore.NewMemory()
	require.NoError(t, db.EnsureIndex(context.Background(), "users", docstore.Index{Keys: []string{"email"}, Unique: true}))
	return NewAuthService(store.NewUserRepository(db.Collection("users")), auth.NewTokenManager("test-secret", time.Hour))
}

func validHealthData() types.HealthData {
	ldl := 140
	return types.HealthData{
		Age:                    55,
		Gender:                 "male",
		BloodPressureSystolic:  135,
		BloodPressureDiastolic: 85,
		CholesterolTotal:       220,
		CholesterolLDL:         &ldl,
		Smoking:                "former",
		Diabetes:               "no",
		FamilyHistory:          "yes",
		BMI:                    27.4,
		ExerciseFrequency:      "weekly",
		StressLevel:            "moderate",
		DietQuality:            "average",
	}
}

func TestAuthService_RegisterLoginMe(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)

	res, err := svc.Register(ctx, RegisterInput{Email: "ann@example.com", Password: "pw123456", Name: "Ann"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.Token)
	assert.NotEmpty(t, res.User.ID)
	assert.Empty(t, res.User.PasswordHash)

	userID, err := svc.Authenticate(res.Token)
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, userID)

	login, err := svc.Login(ctx, "ann@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, res.User.ID, login.User.ID)

	me, err := svc.Me(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "Ann", me.Name)
	assert.Empty(t, me.PasswordHash)
}

func TestAuthService_RegisterErrors(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)

	_, err := svc.Register(ctx, RegisterInput{Email: "dup@example.com", Password: "pw", Name: "A"})
	require.NoError(t, err)

	tests := []struct {
		name string
		in   RegisterInput
		kind apperr.Kind
	}{
		{"duplicate email", RegisterInput{Email: "dup@example.com", Password: "other", Name: "B"}, apperr.KindConflict},
		{"missing name", RegisterInput{Email: "x@example.com", Password: "pw"}, apperr.KindValidation},
		{"missing password", RegisterInput{Email: "x@example.com", Name: "X"}, apperr.KindValidation},
		{"malformed email", RegisterInput{Email: "not-an-email", Password: "pw", Name: "X"}, apperr.KindValidation},
		{"display name form", RegisterInput{Email: "X <x@example.com>", Password: "pw", Name: "X"}, apperr.KindValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.in)
			assert.True(t, apperr.Is(err, tt.kind), "got %v", err)
		})
	}

	_, err = svc.Register(ctx, RegisterInput{Email: "dup@example.com", Password: "other", Name: "B"})
	assert.EqualError(t, err, "Email already registered")
}

func TestAuthService_LoginFailures(t *testing.T) {
	ctx := context.Background()
	svc := newAuthService(t)
	_, err := svc.Register(ctx, RegisterInput{Email: "bob@example.com", Password: "right", Name: "Bob"})
	require.NoError(t, err)

	_, err = svc.Login(ctx, "bob@example.com", "wrong")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.EqualError(t, err, "Invalid email or password")

	_, err = svc.Login(ctx, "nobody@example.com", "right")
	assert.EqualError(t, err, "Invalid email or password")
}

func TestAuthService_Authenticate(t *testing.T) {
	svc := newAuthService(t)

	_, err := svc.Authenticate("garbage")
	assert.True(t, apperr.Is(err, apperr.KindUnauthorized))
	assert.EqualError(t, err, "Invalid token")

	expired := NewAuthService(nil, auth.NewTokenManager("test-secret", -time.Minute))
	token, err := expired.tokens.Issue("u1")
	require.NoError(t, err)
	_, err = svc.Authenticate(token)
	assert.EqualError(t, err, "Token expired")

	_, err = svc.Me(context.Background(), "missing")
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func newPredictionService(model llm.Completer, archive ReportArchive, events EventPublisher) *PredictionService {
	repo := store.NewPredictionRepository(docstore.NewMemory().Collection("predictions"))
	return NewPredictionService(repo, model, archive, events)
}

func TestPredictionService_Predict(t *testing.T) {
	ctx := context.Background()
	model := &fakeCompleter{reply: "Risk Assessment: Moderate risk.\nRecommendations\n- Walk daily"}
	archive := storage.NewReportArchive(storage.NewMemoryStorage())
	events := &recordingPublisher{}
	svc := newPredictionService(model, archive, events)

	got, err := svc.Predict(ctx, "u1", validHealthData())
	require.NoError(t, err)
	assert.Equal(t, ": Moderate risk.", got.RiskAssessment)
	assert.Equal(t, "- Walk daily", got.Recommendations)
	assert.Equal(t, "u1", got.UserID)
	assert.Equal(t, riskSystemMessage, model.system)
	assert.Contains(t, model.prompts[0], "- Blood Pressure: 135/85 mmHg")
	assert.Contains(t, model.prompts[0], "- LDL Cholesterol: 140 mg/dL")
	assert.NotContains(t, model.prompts[0], "HDL Cholesterol")
	assert.Equal(t, []string{mq.PredictionCreated}, events.eventTypes())

	report, err := svc.Report(ctx, "u1", got.ID)
	require.NoError(t, err)
	assert.Equal(t, model.reply, report)

	_, err = svc.Report(ctx, "u2", got.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPredictionService_PredictFailures(t *testing.T) {
	ctx := context.Background()

	svc := newPredictionService(&fakeCompleter{err: fmt.Errorf("%w: upstream 503", llm.ErrUnavailable)}, nil, nil)
	_, err := svc.Predict(ctx, "u1", validHealthData())
	assert.True(t, apperr.Is(err, apperr.KindAIUnavailable))
	assert.ErrorContains(t, err, "Prediction failed: ")
	assert.ErrorIs(t, err, llm.ErrUnavailable)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	model := &fakeCompleter{reply: "ok"}
	svc = newPredictionService(model, nil, nil)
	bad := validHealthData()
	bad.Age = 0
	bad.Smoking = " "
	_, err = svc.Predict(ctx, "u1", bad)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
	assert.ErrorContains(t, err, "age, smoking")
	assert.Zero(t, model.calls)
}

func TestPredictionService_PublishFailureIsIgnored(t *testing.T) {
	svc := newPredictionService(&fakeCompleter{reply: "text"}, nil, &recordingPublisher{err: errors.New("broker down")})
	_, err := svc.Predict(context.Background(), "u1", validHealthData())
	assert.NoError(t, err)
}

func TestPredictionService_ListAndGetScoped(t *testing.T) {
	ctx := context.Background()
	svc := newPredictionService(&fakeCompleter{reply: "Risk Assessment Low Recommendations none"}, nil, nil)

	first, err := svc.Predict(ctx, "u1", validHealthData())
	require.NoError(t, err)
	_, err = svc.Predict(ctx, "u2", validHealthData())
	require.NoError(t, err)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	_, err = svc.Get(ctx, "u2", first.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	_, err = svc.Report(ctx, "u1", first.ID)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

type failingPredictionRepo struct {
	PredictionRepository
}

func (failingPredictionRepo) Create(context.Context, types.PredictionResult) (types.PredictionResult, error) {
	return types.PredictionResult{}, errors.New("write failed")
}

type mapArchive struct {
	reports map[string]string
}

func (a *mapArchive) PutReport(_ context.Context, userID, predictionID, text string) error {
	a.reports[storage.ReportKey(userID, predictionID)] = text
	return nil
}

func (a *mapArchive) GetReport(_ context.Context, userID, predictionID string) (string, error) {
	text, ok := a.reports[storage.ReportKey(userID, predictionID)]
	if !ok {
		return "", storage.ErrObjectNotFound
	}
	return text, nil
}

func (a *mapArchive) DeleteReport(_ context.Context, userID, predictionID string) error {
	delete(a.reports, storage.ReportKey(userID, predictionID))
	return nil
}

func TestPredictionService_RemovesReportWhenSaveFails(t *testing.T) {
	archive := &mapArchive{reports: map[string]string{}}
	svc := NewPredictionService(failingPredictionRepo{}, &fakeCompleter{reply: "Risk Assessment Low"}, archive, nil)

	_, err := svc.Predict(context.Background(), "u1", validHealthData())
	assert.True(t, apperr.Is(err, apperr.KindInternal))
	assert.Empty(t, archive.reports)
}

func TestPredictionService_CreatedMatchesFetched(t *testing.T) {
	ctx := context.Background()
	svc := newPredictionService(&fakeCompleter{reply: "Risk Assessment Low Recommendations Walk"}, nil, nil)

	created, err := svc.Predict(ctx, "u1", validHealthData())
	require.NoError(t, err)

	fetched, err := svc.Get(ctx, "u1", created.ID)
	require.NoError(t, err)
	assert.Equal(t, created, fetched)

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, created, list[0])
}

func TestSplitNarrative(t *testing.T) {
	tests := []struct {
		name, text, risk, recs string
	}{
		{"both sections", "## Risk Assessment\nHigh\n## Recommendations\nQuit smoking", "## \nHigh\n##", "Quit smoking"},
		{"no marker", "Risk Assessment: Low", ": Low", "Risk Assessment: Low"},
		{"splits once", "a Recommendations b Recommendations c", "a", "b Recommendations c"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			risk, recs := SplitNarrative(tt.text)
			assert.Equal(t, tt.risk, risk)
			assert.Equal(t, tt.recs, recs)
		})
	}
}

func newExpenseService(model llm.Completer, events EventPublisher) *ExpenseService {
	repo := store.NewExpenseRepository(docstore.NewMemory().Collection("expenses"))
	return NewExpenseService(repo, model, true, events)
}

func ptr[T any](v T) *T {
	return &v
}

func TestExpenseService_CreateCategorization(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name       string
		model      *fakeCompleter
		in         CreateExpenseInput
		category   string
		aiAssigned bool
	}{
		{"ai exact", &fakeCompleter{reply: "Transportation"}, CreateExpenseInput{Description: "Uber", Amount: ptr(12.5), UseAICategorization: true}, "Transportation", true},
		{"ai fuzzy", &fakeCompleter{reply: "category: travel"}, CreateExpenseInput{Description: "Flight", Amount: ptr(300.0), UseAICategorization: true}, "Travel", true},
		{"ai unreachable", &fakeCompleter{err: llm.ErrUnavailable}, CreateExpenseInput{Description: "Thing", Amount: ptr(1.0), UseAICategorization: true}, "Other", true},
		{"given category wins", &fakeCompleter{reply: "Travel"}, CreateExpenseInput{Description: "Lunch", Amount: ptr(9.0), Category: ptr("Food & Dining"), UseAICategorization: true}, "Food & Dining", false},
		{"no ai no category", &fakeCompleter{reply: "Travel"}, CreateExpenseInput{Description: "Misc", Amount: ptr(3.0)}, "Other", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newExpenseService(tt.model, nil)
			got, err := svc.Create(ctx, "u1", tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.aiAssigned, got.AICategorized)
		})
	}
}

func TestExpenseService_CreateValidation(t *testing.T) {
	svc := newExpenseService(nil, nil)
	ctx := context.Background()

	for name, in := range map[string]CreateExpenseInput{
		"blank description": {Description: "  ", Amount: ptr(1.0)},
		"missing amount":    {Description: "x"},
		"nan amount":        {Description: "x", Amount: ptr(math.NaN())},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Create(ctx, "u1", in)
			assert.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
		})
	}

	got, err := svc.Create(ctx, "u1", CreateExpenseInput{Description: "x", Amount: ptr(1.0), UseAICategorization: true})
	require.NoError(t, err)
	assert.Equal(t, types.DefaultCategory, got.Category)
	assert.True(t, got.AICategorized)
}

func TestExpenseService_CreatedMatchesListed(t *testing.T) {
	ctx := context.Background()
	svc := newExpenseService(nil, nil)

	for name, date := range map[string]*time.Time{
		"default date":         nil,
		"sub-microsecond date": ptr(time.Date(2025, 5, 1, 10, 0, 0, 123456789, time.UTC)),
	} {
		t.Run(name, func(t *testing.T) {
			created, err := svc.Create(ctx, name, CreateExpenseInput{Description: "Coffee", Amount: ptr(4.0), Date: date})
			require.NoError(t, err)

			list, err := svc.List(ctx, name)
			require.NoError(t, err)
			require.Len(t, list, 1)
			assert.Equal(t, created, list[0])
		})
	}
}

func TestExpenseService_UpdateTruncatesDateAndEmptyPatch(t *testing.T) {
	ctx := context.Background()
	events := &recordingPublisher{}
	svc := newExpenseService(nil, events)

	created, err := svc.Create(ctx, "u1", CreateExpenseInput{Description: "Coffee", Amount: ptr(4.0)})
	require.NoError(t, err)

	date := time.Date(2025, 6, 1, 9, 30, 0, 999999999, time.UTC)
	updated, err := svc.Update(ctx, "u1", created.ID, types.ExpensePatch{Date: &date})
	require.NoError(t, err)
	assert.Equal(t, date.Truncate(time.Microsecond), updated.Date)

	unchanged, err := svc.Update(ctx, "u1", created.ID, types.ExpensePatch{})
	require.NoError(t, err)
	assert.Equal(t, updated, unchanged)

	_, err = svc.Update(ctx, "u2", created.ID, types.ExpensePatch{})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.Equal(t, []string{mq.ExpenseCreated, mq.ExpenseUpdated}, events.eventTypes())
}

func TestExpenseService_UpdateDeleteScoped(t *testing.T) {
	ctx := context.Background()
	events := &recordingPublisher{}
	svc := newExpenseService(nil, events)
	date := time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)

	created, err := svc.Create(ctx, "u1", CreateExpenseInput{Description: "Coffee", Amount: ptr(4.0), Date: &date})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, "u1", created.ID, types.ExpensePatch{Amount: ptr(5.0)})
	require.NoError(t, err)
	assert.Equal(t, 5.0, updated.Amount)
	assert.Equal(t, "Coffee", updated.Description)
	assert.Equal(t, "Other", updated.Category)
	assert.Equal(t, date, updated.Date)

	_, err = svc.Update(ctx, "u1", created.ID, types.ExpensePatch{Description: ptr(" ")})
	assert.True(t, apperr.Is(err, apperr.KindValidation))

	_, err = svc.Update(ctx, "u2", created.ID, types.ExpensePatch{Amount: ptr(1.0)})
	assert.True(t, apperr.Is(err, apperr.KindNotFound))

	assert.True(t, apperr.Is(svc.Delete(ctx, "u2", created.ID), apperr.KindNotFound))
	require.NoError(t, svc.Delete(ctx, "u1", created.ID))
	assert.True(t, apperr.Is(svc.Delete(ctx, "u1", created.ID), apperr.KindNotFound))

	list, err := svc.List(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.Equal(t, []string{mq.ExpenseCreated, mq.ExpenseUpdated, mq.ExpenseDeleted}, events.eventTypes())
}

func TestMatchCategory(t *testing.T) {
	assert.Equal(t, "Healthcare", MatchCategory("  Healthcare\n", false))
	assert.Equal(t, "Other", MatchCategory("healthcare", false))
	assert.Equal(t, "Healthcare", MatchCategory("healthcare", true))
	assert.Equal(t, "Bills & Utilities", MatchCategory("Utilities", true))
	assert.Equal(t, "Other", MatchCategory("Groceries", true))
	assert.Equal(t, "Other", MatchCategory("", true))
}

func TestExpenseService_Categories(t *testing.T) {
	svc := newExpenseService(nil, nil)
	cats := svc.Categories()
	assert.Len(t, cats, 10)
	cats[0] = "mutated"
	assert.Equal(t, "Food & Dining", types.ExpenseCategories[0])
}
