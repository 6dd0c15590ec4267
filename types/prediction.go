package types

import "time"

// HealthData holds the patient metrics submitted for a heart risk prediction.
// Optional measurements are pointers so that an absent value can be told
// apart from zero.
type HealthData struct {
	// Age is the patient's age in years.
	Age int `json:"age"`

	// Gender is a free-form gender description.
	Gender string `json:"gender"`

	// BloodPressureSystolic and BloodPressureDiastolic are in mmHg.
	BloodPressureSystolic  int `json:"blood_pressure_systolic"`
	BloodPressureDiastolic int `json:"blood_pressure_diastolic"`

	// CholesterolTotal, CholesterolLDL and CholesterolHDL are in mg/dL.
	CholesterolTotal int  `json:"cholesterol_total"`
	CholesterolLDL   *int `json:"cholesterol_ldl,omitempty"`
	CholesterolHDL   *int `json:"cholesterol_hdl,omitempty"`

	Smoking       string `json:"smoking"`
	Diabetes      string `json:"diabetes"`
	FamilyHistory string `json:"family_history"`

	// BMI is the body mass index.
	BMI float64 `json:"bmi"`

	ExerciseFrequency string `json:"exercise_frequency"`

	// ECGData carries optional free-text ECG notes.
	ECGData *string `json:"ecg_data,omitempty"`

	StressLevel string `json:"stress_level"`
	DietQuality string `json:"diet_quality"`
}

// PredictionResult is an append-only heart risk assessment owned by a user.
type PredictionResult struct {
	// ID is the generated string identifier of the prediction.
	ID string `json:"id"`

	// UserID identifies the owner of the prediction.
	UserID string `json:"user_id"`

	// HealthData is the input the assessment was produced from.
	HealthData HealthData `json:"health_data"`

	// RiskAssessment is the risk section of the model narrative.
	RiskAssessment string `json:"risk_assessment"`

	// Recommendations is the recommendations section of the model narrative.
	Recommendations string `json:"recommendations"`

	// CreatedAt is the timestamp when the prediction was made.
	CreatedAt time.Time `json:"created_at"`
}
