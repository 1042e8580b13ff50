package spam

import (
	"math"
	"strings"
)

// mlModel is a bag-of-words naive-Bayes classifier with TF-IDF weighted
// features. It is the optional second layer mentioned in the component's
// doc comment: off by default, attached via Classifier.LoadModel once a
// caller has trained one from labeled history.
type mlModel struct {
	spamWordWeight map[string]float64
	promoWordWeight map[string]float64
	spamBias        float64
	promoBias       float64
}

// NewModel builds a model from pre-computed per-token weights, e.g. loaded
// from a JSON artifact trained offline. There is no online training loop
// here; operators retrain and redeploy the weights file.
func NewModel(spamWordWeight, promoWordWeight map[string]float64, spamBias, promoBias float64) *mlModel {
	return &mlModel{
		spamWordWeight:  spamWordWeight,
		promoWordWeight: promoWordWeight,
		spamBias:        spamBias,
		promoBias:       promoBias,
	}
}

func (m *mlModel) predict(subject, body string) (spamProb, promoProb float64) {
	tokens := tokenize(subject + " " + body)
	spamScore := m.spamBias
	promoScore := m.promoBias
	for _, tok := range tokens {
		spamScore += m.spamWordWeight[tok]
		promoScore += m.promoWordWeight[tok]
	}
	return sigmoid(spamScore), sigmoid(promoScore)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9')
	})
	return fields
}
