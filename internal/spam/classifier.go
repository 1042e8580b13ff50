// Package spam scores inbound email as ham/spam/promotion. Layer 1 (rules)
// is grounded on the teacher's header-sniffing style in mail/service.go's
// isAutoReply; Layer 2 (optional ML) has no teacher or pack precedent — no
// example repo ships a text-classification library — so it stays on the
// standard library (see DESIGN.md).
package spam

import (
	"regexp"
	"strings"
)

type Category string

const (
	CategoryHam        Category = "ham"
	CategorySpam       Category = "spam"
	CategoryPromotion  Category = "promotion"
)

type Result struct {
	Category       Category
	SpamScore      float64
	PromotionScore float64
	Reasons        []string
}

var spamKeywords = []string{
	"viagra", "lottery", "winner", "congratulations you won", "claim your prize",
	"act now", "risk free", "click here", "100% free", "wire transfer", "nigerian prince",
	"urgent reply needed", "you have been selected",
}

var promotionKeywords = []string{
	"unsubscribe", "% off", "discount", "limited time offer", "special offer",
	"buy now", "shop now", "sale ends", "free shipping", "promo code",
}

var suspiciousSenderPattern = regexp.MustCompile(`(?i)^(noreply|no-reply|donotreply|bulk|newsletter|marketing)@`)
var linkPattern = regexp.MustCompile(`https?://\S+`)

// Classifier scores a message with rule-based signals and, if an ML model
// is loaded, blends in a TF-IDF/naive-Bayes probability 60/40 (ML/rules).
type Classifier struct {
	spamThreshold      float64
	promotionThreshold float64
	ml                 *mlModel
}

func NewClassifier(spamThreshold, promotionThreshold float64) *Classifier {
	if spamThreshold <= 0 {
		spamThreshold = 0.5
	}
	if promotionThreshold <= 0 {
		promotionThreshold = 0.5
	}
	return &Classifier{spamThreshold: spamThreshold, promotionThreshold: promotionThreshold}
}

// LoadModel attaches a trained TF-IDF/naive-Bayes model; without this call
// the classifier runs rules alone.
func (c *Classifier) LoadModel(m *mlModel) { c.ml = m }

// Classify scores subject/body/headers. isKnownSender and isReplyToExisting
// implement the two "never filter" exceptions from §4.3: the caller looks
// these up against Store before calling, not inside the classifier, so
// Classify itself stays a pure function of the message.
func (c *Classifier) Classify(subject, bodyText, from string, headers map[string][]string) Result {
	spamScore, spamReasons := c.ruleScore(subject, bodyText, from, headers, spamKeywords)
	promoScore, promoReasons := c.ruleScore(subject, bodyText, from, headers, promotionKeywords)

	if hasListUnsubscribe(headers) {
		promoScore += 0.3
		promoReasons = append(promoReasons, "list-unsubscribe header")
	}

	spamScore = clamp01(spamScore)
	promoScore = clamp01(promoScore)

	if c.ml != nil {
		mlSpam, mlPromo := c.ml.predict(subject, bodyText)
		spamScore = 0.6*mlSpam + 0.4*spamScore
		promoScore = 0.6*mlPromo + 0.4*promoScore
	}

	reasons := append(spamReasons, promoReasons...)

	category := CategoryHam
	isSpam := spamScore >= c.spamThreshold
	isPromo := promoScore >= c.promotionThreshold
	switch {
	case isSpam && isPromo:
		category = CategorySpam // both true -> spam wins
	case isSpam:
		category = CategorySpam
	case isPromo:
		category = CategoryPromotion
	}

	return Result{Category: category, SpamScore: spamScore, PromotionScore: promoScore, Reasons: reasons}
}

func (c *Classifier) ruleScore(subject, bodyText, from string, headers map[string][]string, keywords []string) (float64, []string) {
	haystack := strings.ToLower(subject + " " + bodyText)
	var score float64
	var reasons []string

	matches := 0
	for _, kw := range keywords {
		if strings.Contains(haystack, kw) {
			matches++
			reasons = append(reasons, "keyword:"+kw)
		}
	}
	if matches > 0 {
		score += float64(matches) * 0.2
	}

	if isAllCaps(subject) {
		score += 0.2
		reasons = append(reasons, "all-caps subject")
	}

	if suspiciousSenderPattern.MatchString(from) {
		score += 0.2
		reasons = append(reasons, "suspicious sender pattern")
	}

	if ratio := linkToTextRatio(bodyText); ratio > 0.3 {
		score += 0.2
		reasons = append(reasons, "high link-to-text ratio")
	}

	return score, reasons
}

func hasListUnsubscribe(headers map[string][]string) bool {
	for k := range headers {
		if strings.EqualFold(k, "List-Unsubscribe") {
			return true
		}
	}
	return false
}

func isAllCaps(s string) bool {
	letters := 0
	upper := 0
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			letters++
		} else if r >= 'A' && r <= 'Z' {
			letters++
			upper++
		}
	}
	return letters >= 6 && upper == letters
}

func linkToTextRatio(body string) float64 {
	if len(body) == 0 {
		return 0
	}
	links := linkPattern.FindAllString(body, -1)
	linkChars := 0
	for _, l := range links {
		linkChars += len(l)
	}
	return float64(linkChars) / float64(len(body))
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
