package models

// Field is one of the five lab values the prediction model consumes
type Field string

const (
	FieldGlucose      Field = "glucose"
	FieldAlbumin      Field = "albumin"
	FieldBUN          Field = "bun"
	FieldPhosphorus   Field = "phosphorus"
	FieldTotalProtein Field = "total_protein"
)

// RequiredFields is the fixed order the prediction service expects.
var RequiredFields = []Field{
	FieldGlucose,
	FieldAlbumin,
	FieldBUN,
	FieldPhosphorus,
	FieldTotalProtein,
}

// PredictionOutput describes one of the four quantities returned by the prediction service
type PredictionOutput struct {
	Key         string
	DisplayName string
	Unit        string
}

var PredictionOutputs = []PredictionOutput{
	{Key: "TPNCALCULATEDGLUCOSE", DisplayName: "Glucose supply", Unit: "g"},
	{Key: "TPNCALCULATEDPROTEIN", DisplayName: "Protein supply", Unit: "g"},
	{Key: "TPNCALCULATEDLIPID", DisplayName: "Lipid supply", Unit: "g"},
	{Key: "TPNCALCULATEDCALORI", DisplayName: "Total calorie supply", Unit: "kcal"},
}

const (
	ExtractionToolName = "extract_blood_test_values"

	PrescriptionHeading = "**TPN prescription plan**"
	ReferencesHeading   = "**Referenced guidelines**"

	GenericApology        = "Sorry, an error occurred while processing your request."
	ExtractionFallback    = "Sorry, an error occurred while processing the message."
	EmptyAnswerFallback   = "Analysing the blood test results."
	PredictionErrorNote   = "Sorry, an error occurred during the prediction. Please try again."
	PredictionOfflineNote = "Sorry, the prediction service could not be reached. Please try again shortly."
)

var (
	labValueGuide = `Required blood test values:
1. Glucose (mg/dL) - normal range: 70-100 mg/dL
2. Albumin (g/dL) - normal range: 3.4-5.4 g/dL
3. Blood urea nitrogen, BUN (mg/dL) - normal range: 7-20 mg/dL
4. Phosphorus (mg/dL) - normal range: 2.5-4.5 mg/dL
5. Total protein (g/dL) - normal range: 6.0-8.3 g/dL`

	ContextPromptTemplate = `You are a chatbot with the expertise of the clinical staff of a neonatal intensive care unit (NICU).

Important rules:
1. Base the answer only on the medical documents provided below.
2. Never add information that is not in the provided documents.
3. If the documents do not contain the answer, say "No relevant information was found in the provided documents."
4. Use the function call only when blood test values are given.
5. If the content involves a department other than paediatrics, end the answer with "This includes content handled by another department. Please request a consult answer if needed."

` + labValueGuide + `

Medical documents for reference:
%s

Using the content above, give the most helpful answer possible. If the retrieved content is limited, share what is available and ask for a more specific question.`

	NoContextPrompt = `You are a chatbot with the expertise of the clinical staff of a neonatal intensive care unit (NICU).

` + labValueGuide + `

When blood test results are provided, extract the values with the function call.
No guideline documents are uploaded yet, so for general questions guide the user to upload documents first.`
)
