package spam

import "testing"

func TestClassifySpam(t *testing.T) {
	c := NewClassifier(0.5, 0.5)
	res := c.Classify(
		"CONGRATULATIONS YOU WON A PRIZE",
		"You have been selected, click here to claim your prize now, act now, risk free, 100% free wire transfer.",
		"spammer@bulk-mailer.example",
		nil,
	)
	if res.Category != CategorySpam {
		t.Fatalf("expected spam, got %s (score %.2f)", res.Category, res.SpamScore)
	}
}

func TestClassifyPromotion(t *testing.T) {
	c := NewClassifier(0.5, 0.5)
	headers := map[string][]string{"List-Unsubscribe": {"<mailto:unsub@example.com>"}}
	res := c.Classify(
		"Special offer just for you",
		"Shop now for our limited time offer, buy now and save with free shipping and a promo code, discount applies, sale ends soon, unsubscribe anytime.",
		"marketing@shop.example",
		headers,
	)
	if res.Category != CategoryPromotion && res.Category != CategorySpam {
		t.Fatalf("expected promotion or spam, got %s", res.Category)
	}
}

func TestClassifyHam(t *testing.T) {
	c := NewClassifier(0.5, 0.5)
	res := c.Classify(
		"Trouble logging in",
		"Hi, I can't reset my password, could you help me out?",
		"customer@acme.example",
		nil,
	)
	if res.Category != CategoryHam {
		t.Fatalf("expected ham, got %s (spam %.2f promo %.2f)", res.Category, res.SpamScore, res.PromotionScore)
	}
}
