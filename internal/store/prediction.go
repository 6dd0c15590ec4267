package store

import (
	"context"
	"time"

	"github.com/healthspend/apiserver/internal/docstore"
	"github.com/healthspend/apiserver/types"
)

type healthDataDocument struct {
	Age                    int     `bson:"age" json:"age"`
	Gender                 string  `bson:"gender" json:"gender"`
	BloodPressureSystolic  int     `bson:"blood_pressure_systolic" json:"blood_pressure_systolic"`
	BloodPressureDiastolic int     `bson:"blood_pressure_diastolic" json:"blood_pressure_diastolic"`
	CholesterolTotal       int     `bson:"cholesterol_total" json:"cholesterol_total"`
	CholesterolLDL         *int    `bson:"cholesterol_ldl" json:"cholesterol_ldl"`
	CholesterolHDL         *int    `bson:"cholesterol_hdl" json:"cholesterol_hdl"`
	Smoking                string  `bson:"smoking" json:"smoking"`
	Diabetes               string  `bson:"diabetes" json:"diabetes"`
	FamilyHistory          string  `bson:"family_history" json:"family_history"`
	BMI                    float64 `bson:"bmi" json:"bmi"`
	ExerciseFrequency      string  `bson:"exercise_frequency" json:"exercise_frequency"`
	ECGData                *string `bson:"ecg_data" json:"ecg_data"`
	StressLevel            string  `bson:"stress_level" json:"stress_level"`
	DietQuality            string  `bson:"diet_quality" json:"diet_quality"`
}

type predictionDocument struct {
	ID              string             `bson:"id" json:"id"`
	UserID          string             `bson:"user_id" json:"user_id"`
	HealthData      healthDataDocument `bson:"health_data" json:"health_data"`
	RiskAssessment  string             `bson:"risk_assessment" json:"risk_assessment"`
	Recommendations string             `bson:"recommendations" json:"recommendations"`
	CreatedAt       string             `bson:"created_at" json:"created_at"`
}

func newPredictionDocument(p types.PredictionResult) predictionDocument {
	h := p.HealthData
	return predictionDocument{
		ID:     p.ID,
		UserID: p.UserID,
		HealthData: healthDataDocument{
			Age:                    h.Age,
			Gender:                 h.Gender,
			BloodPressureSystolic:  h.BloodPressureSystolic,
			BloodPressureDiastolic: h.BloodPressureDiastolic,
			CholesterolTotal:       h.CholesterolTotal,
			CholesterolLDL:         h.CholesterolLDL,
			CholesterolHDL:         h.CholesterolHDL,
			Smoking:                h.Smoking,
			Diabetes:               h.Diabetes,
			FamilyHistory:          h.FamilyHistory,
			BMI:                    h.BMI,
			ExerciseFrequency:      h.ExerciseFrequency,
			ECGData:                h.ECGData,
			StressLevel:            h.StressLevel,
			DietQuality:            h.DietQuality,
		},
		RiskAssessment:  p.RiskAssessment,
		Recommendations: p.Recommendations,
		CreatedAt:       formatTime(p.CreatedAt),
	}
}

func (d predictionDocument) toPrediction() types.PredictionResult {
	h := d.HealthData
	return types.PredictionResult{
		ID:     d.ID,
		UserID: d.UserID,
		HealthData: types.HealthData{
			Age:                    h.Age,
			Gender:                 h.Gender,
			BloodPressureSystolic:  h.BloodPressureSystolic,
			BloodPressureDiastolic: h.BloodPressureDiastolic,
			CholesterolTotal:       h.CholesterolTotal,
			CholesterolLDL:         h.CholesterolLDL,
			CholesterolHDL:         h.CholesterolHDL,
			Smoking:                h.Smoking,
			Diabetes:               h.Diabetes,
			FamilyHistory:          h.FamilyHistory,
			BMI:                    h.BMI,
			ExerciseFrequency:      h.ExerciseFrequency,
			ECGData:                h.ECGData,
			StressLevel:            h.StressLevel,
			DietQuality:            h.DietQuality,
		},
		RiskAssessment:  d.RiskAssessment,
		Recommendations: d.Recommendations,
		CreatedAt:       parseTime(d.CreatedAt),
	}
}

// PredictionRepository handles persistence for prediction results. Every
// read is scoped to the owning user.
type PredictionRepository struct {
	predictions docstore.Collection
}

func NewPredictionRepository(predictions docstore.Collection) *PredictionRepository {
	return &PredictionRepository{predictions: predictions}
}

func (r *PredictionRepository) Create(ctx context.Context, p types.PredictionResult) (types.PredictionResult, error) {
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now()
	}
	p.CreatedAt = normalizeTime(p.CreatedAt)
	if err := r.predictions.InsertOne(ctx, newPredictionDocument(p)); err != nil {
		return types.PredictionResult{}, mapErr(err)
	}
	return p, nil
}

// ListByUser returns the user's predictions, newest first.
func (r *PredictionRepository) ListByUser(ctx context.Context, userID string, limit int64) ([]types.PredictionResult, error) {
	var docs []predictionDocument
	opts := docstore.FindOptions{SortField: "created_at", SortDesc: true, Limit: limit}
	if err := r.predictions.Find(ctx, docstore.Filter{"user_id": userID}, opts, &docs); err != nil {
		return nil, mapErr(err)
	}
	results := make([]types.PredictionResult, 0, len(docs))
	for _, doc := range docs {
		results = append(results, doc.toPrediction())
	}
	return results, nil
}

func (r *PredictionRepository) GetByID(ctx context.Context, userID, id string) (types.PredictionResult, error) {
	var doc predictionDocument
	if err := r.predictions.FindOne(ctx, docstore.Filter{"id": id, "user_id": userID}, &doc); err != nil {
		return types.PredictionResult{}, mapErr(err)
	}
	return doc.toPrediction(), nil
}
