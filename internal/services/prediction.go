package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/healthspend/apiserver/internal/apperr"
	"github.com/healthspend/apiserver/internal/llm"
	"github.com/healthspend/apiserver/internal/mq"
	"github.com/healthspend/apiserver/internal/storage"
	"github.com/healthspend/apiserver/internal/store"
	"github.com/healthspend/apiserver/types"
)

const (
	predictionListLimit = 100

	riskSystemMessage = "You are a medical AI assistant specializing in cardiovascular health risk assessment. Provide detailed, evidence-based analysis."

	riskSectionMarker            = "Risk Assessment"
	recommendationsSectionMarker = "Recommendations"
)

// PredictionRepository defines persistence operations for predictions.
type PredictionRepository interface {
	Create(ctx context.Context, p types.PredictionResult) (types.PredictionResult, error)
	ListByUser(ctx context.Context, userID string, limit int64) ([]types.PredictionResult, error)
	GetByID(ctx context.Context, userID, id string) (types.PredictionResult, error)
}

// ReportArchive keeps the raw model narrative of each prediction.
type ReportArchive interface {
	PutReport(ctx context.Context, userID, predictionID, text string) error
	GetReport(ctx context.Context, userID, predictionID string) (string, error)
	DeleteReport(ctx context.Context, userID, predictionID string) error
}

// PredictionService encapsulates heart risk prediction use-cases.
type PredictionService struct {
	repo    PredictionRepository
	model   llm.Completer
	archive ReportArchive
	events  EventPublisher
}

// NewPredictionService wires the service. archive and events may be nil.
func NewPredictionService(repo PredictionRepository, model llm.Completer, archive ReportArchive, events EventPublisher) *PredictionService {
	return &PredictionService{repo: repo, model: model, archive: archive, events: events}
}

// Predict asks the model for a risk narrative and stores the result.
func (s *PredictionService) Predict(ctx context.Context, userID string, data types.HealthData) (types.PredictionResult, error) {
	if err := ValidateHealthData(data); err != nil {
		return types.PredictionResult{}, err
	}
	if s.model == nil {
		return types.PredictionResult{}, apperr.AIUnavailable("Prediction failed: ai service not configured", llm.ErrUnavailable)
	}

	text, err := s.model.Complete(ctx, riskSystemMessage, BuildRiskPrompt(data))
	if err != nil {
		return types.PredictionResult{}, apperr.AIUnavailable("Prediction failed: "+err.Error(), err)
	}

	risk, recommendations := SplitNarrative(text)
	id := uuid.NewString()

	archived := false
	if s.archive != nil {
		if err := s.archive.PutReport(ctx, userID, id, text); err != nil {
			slog.WarnContext(ctx, "failed to archive report", "prediction_id", id, "error", err)
		} else {
			archived = true
		}
	}

	prediction, err := s.repo.Create(ctx, types.PredictionResult{
		ID:              id,
		UserID:          userID,
		HealthData:      data,
		RiskAssessment:  risk,
		Recommendations: recommendations,
		CreatedAt:       time.Now().UTC(),
	})
	if err != nil {
		if archived {
			if derr := s.archive.DeleteReport(ctx, userID, id); derr != nil {
				slog.WarnContext(ctx, "failed to remove orphaned report", "prediction_id", id, "error", derr)
			}
		}
		return types.PredictionResult{}, apperr.Internal("failed to save prediction", err)
	}
	publishEvent(ctx, s.events, mq.ChannelPredictions, mq.PredictionCreated, prediction.ID, userID)

	return prediction, nil
}

// List returns the caller's most recent predictions, newest first.
func (s *PredictionService) List(ctx context.Context, userID string) ([]types.PredictionResult, error) {
	predictions, err := s.repo.ListByUser(ctx, userID, predictionListLimit)
	if err != nil {
		return nil, apperr.Internal("failed to list predictions", err)
	}
	return predictions, nil
}

func (s *PredictionService) Get(ctx context.Context, userID, id string) (types.PredictionResult, error) {
	prediction, err := s.repo.GetByID(ctx, userID, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return types.PredictionResult{}, apperr.NotFound("Prediction not found")
		}
		return types.PredictionResult{}, apperr.Internal("failed to load prediction", err)
	}
	return prediction, nil
}

// Report returns the archived model narrative of one of the caller's
// predictions.
func (s *PredictionService) Report(ctx context.Context, userID, id string) (string, error) {
	if _, err := s.Get(ctx, userID, id); err != nil {
		return "", err
	}
	if s.archive == nil {
		return "", apperr.NotFound("Report not found")
	}
	text, err := s.archive.GetReport(ctx, userID, id)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return "", apperr.NotFound("Report not found")
		}
		return "", apperr.Internal("failed to load report", err)
	}
	return text, nil
}

// ValidateHealthData checks that every required measurement is present.
func ValidateHealthData(d types.HealthData) error {
	var missing []string
	if d.Age <= 0 {
		missing = append(missing, "age")
	}
	if d.BloodPressureSystolic <= 0 {
		missing = append(missing, "blood_pressure_systolic")
	}
	if d.BloodPressureDiastolic <= 0 {
		missing = append(missing, "blood_pressure_diastolic")
	}
	if d.CholesterolTotal <= 0 {
		missing = append(missing, "cholesterol_total")
	}
	if d.BMI <= 0 {
		missing = append(missing, "bmi")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"gender", d.Gender},
		{"smoking", d.Smoking},
		{"diabetes", d.Diabetes},
		{"family_history", d.FamilyHistory},
		{"exercise_frequency", d.ExerciseFrequency},
		{"stress_level", d.StressLevel},
		{"diet_quality", d.DietQuality},
	} {
		if strings.TrimSpace(field.value) == "" {
			missing = append(missing, field.name)
		}
	}
	if len(missing) > 0 {
		return apperr.Validation("missing or invalid health data: " + strings.Join(missing, ", "))
	}
	return nil
}

// BuildRiskPrompt renders the patient data into the model prompt. Optional
// measurements are listed only when present.
func BuildRiskPrompt(d types.HealthData) string {
	var b strings.Builder
	b.WriteString("You are a medical AI assistant specializing in cardiovascular health risk assessment. ")
	b.WriteString("Analyze the following patient data and provide a comprehensive heart attack risk assessment.\n\n")
	b.WriteString("Patient Information:\n")
	fmt.Fprintf(&b, "- Age: %d\n", d.Age)
	fmt.Fprintf(&b, "- Gender: %s\n", d.Gender)
	fmt.Fprintf(&b, "- Blood Pressure: %d/%d mmHg\n", d.BloodPressureSystolic, d.BloodPressureDiastolic)
	fmt.Fprintf(&b, "- Total Cholesterol: %d mg/dL\n", d.CholesterolTotal)
	if d.CholesterolLDL != nil && *d.CholesterolLDL > 0 {
		fmt.Fprintf(&b, "- LDL Cholesterol: %d mg/dL\n", *d.CholesterolLDL)
	}
	if d.CholesterolHDL != nil && *d.CholesterolHDL > 0 {
		fmt.Fprintf(&b, "- HDL Cholesterol: %d mg/dL\n", *d.CholesterolHDL)
	}
	fmt.Fprintf(&b, "- Smoking Status: %s\n", d.Smoking)
	fmt.Fprintf(&b, "- Diabetes Status: %s\n", d.Diabetes)
	fmt.Fprintf(&b, "- Family History of Heart Disease: %s\n", d.FamilyHistory)
	fmt.Fprintf(&b, "- BMI: %g\n", d.BMI)
	fmt.Fprintf(&b, "- Exercise Frequency: %s\n", d.ExerciseFrequency)
	fmt.Fprintf(&b, "- Stress Level: %s\n", d.StressLevel)
	fmt.Fprintf(&b, "- Diet Quality: %s\n", d.DietQuality)
	if d.ECGData != nil && strings.TrimSpace(*d.ECGData) != "" {
		fmt.Fprintf(&b, "- ECG Notes: %s\n", *d.ECGData)
	}
	b.WriteString(`
Please provide:
1. Overall Risk Assessment (Low/Moderate/High/Very High) with percentage if applicable
2. Key Risk Factors identified
3. Protective Factors (if any)
4. Detailed lifestyle recommendations
5. Medical follow-up suggestions

Format your response clearly with sections for Risk Assessment and Recommendations.`)
	return b.String()
}

// SplitNarrative splits the model response at the first "Recommendations"
// heading. Without the heading the whole text is used as recommendations.
func SplitNarrative(text string) (risk, recommendations string) {
	before, after, found := strings.Cut(text, recommendationsSectionMarker)
	risk = strings.TrimSpace(strings.ReplaceAll(before, riskSectionMarker, ""))
	if !found {
		return risk, text
	}
	return risk, strings.TrimSpace(after)
}
