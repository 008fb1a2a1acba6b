package responder

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category names. The order of Catalog.Categories decides which one wins
// when several match.
const (
	CategoryGreeting = "greeting"
	CategoryHuman    = "human"
	CategoryOrder    = "order_tracking"
	CategoryDelivery = "delivery"
	CategoryReturns  = "returns"
	CategoryPayment  = "payment"
	CategorySize     = "size"
)

var knownCategories = map[string]bool{
	CategoryGreeting: true,
	CategoryHuman:    true,
	CategoryOrder:    true,
	CategoryDelivery: true,
	CategoryReturns:  true,
	CategoryPayment:  true,
	CategorySize:     true,
}

// menuDigits are the numbered menu options; each needs a shortcut.
var menuDigits = []string{"1", "2", "3", "4", "5", "6"}

type Category struct {
	Name     string   `yaml:"name"`
	Keywords []string `yaml:"keywords"`
	// Reply is the canned answer. Empty means "send the menu".
	Reply string `yaml:"reply"`
}

type Catalog struct {
	Menu       string     `yaml:"menu"`
	Categories []Category `yaml:"categories"`
	// Shortcuts maps a bare menu digit to the category it stands for.
	Shortcuts map[string]string `yaml:"shortcuts"`
}

// LoadCatalog reads a YAML catalog from path.
func LoadCatalog(path string) (Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, err
	}
	return ParseCatalog(b)
}

func ParseCatalog(b []byte) (Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(b, &c); err != nil {
		return Catalog{}, fmt.Errorf("responder: parse catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func (c Catalog) Validate() error {
	if strings.TrimSpace(c.Menu) == "" {
		return errors.New("responder: catalog menu is required")
	}
	if len(c.Categories) == 0 {
		return errors.New("responder: catalog has no categories")
	}
	seen := make(map[string]Category, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.Name == "" {
			return errors.New("responder: category without name")
		}
		if !knownCategories[cat.Name] {
			return fmt.Errorf("responder: unknown category %q", cat.Name)
		}
		if _, dup := seen[cat.Name]; dup {
			return fmt.Errorf("responder: duplicate category %q", cat.Name)
		}
		if len(cat.Keywords) == 0 {
			return fmt.Errorf("responder: category %q has no keywords", cat.Name)
		}
		seen[cat.Name] = cat
	}
	for _, digit := range menuDigits {
		if _, ok := c.Shortcuts[digit]; !ok {
			return fmt.Errorf("responder: menu option %s has no shortcut", digit)
		}
	}
	for digit, name := range c.Shortcuts {
		if len(digit) != 1 || digit[0] < '1' || digit[0] > '6' {
			return fmt.Errorf("responder: shortcut %q is not a menu digit 1-6", digit)
		}
		if _, ok := seen[name]; !ok {
			return fmt.Errorf("responder: shortcut %s points to unknown category %q", digit, name)
		}
	}
	return nil
}

// DefaultCatalog is the shipped help menu, English plus transliterated
// Bangla phrasing.
func DefaultCatalog() Catalog {
	return Catalog{
		Menu: "Hi! I'm the shop assistant. Reply with a number or type your question:\n" +
			"1. Track my order\n" +
			"2. Delivery time\n" +
			"3. Returns & refunds\n" +
			"4. Payment problem\n" +
			"5. Size guide\n" +
			"6. Talk to a human",
		Shortcuts: map[string]string{
			"1": CategoryOrder,
			"2": CategoryDelivery,
			"3": CategoryReturns,
			"4": CategoryPayment,
			"5": CategorySize,
			"6": CategoryHuman,
		},
		Categories: []Category{
			{
				Name: CategoryGreeting,
				Keywords: []string{
					"hello", "hi", "hey", "good morning", "good evening",
					"assalamualaikum", "salam", "hola", "kemon achen", "ki obostha",
				},
			},
			{
				Name: CategoryHuman,
				Keywords: []string{
					"talk to human", "talk to a human", "human", "agent", "real person",
					"customer care", "support team", "manush", "agent er sathe kotha", "kotha bolte chai",
				},
				Reply: "Sure, a member of our support team will reply here shortly. " +
					"To speed things up, please share your order ID (for example ORD-12345).",
			},
			{
				Name: CategoryOrder,
				Keywords: []string{
					"order tracking", "track order", "track my order", "where is my order", "order status",
					"tracking", "order kothay", "amar order", "order ki obostha",
				},
				Reply: "You can follow your order under My Account > Orders. " +
					"Open the order to see its current status and courier tracking number. " +
					"If it looks stuck, send us the order ID here.",
			},
			{
				Name: CategoryDelivery,
				Keywords: []string{
					"delivery time", "delivery", "shipping", "how long", "when will i get",
					"delivery kobe", "koto din", "kobe pabo",
				},
				Reply: "Delivery usually takes 1-2 working days inside the city and " +
					"3-5 working days outside the city. " +
					"You will get an update as soon as the courier picks up your parcel.",
			},
			{
				Name: CategoryReturns,
				Keywords: []string{
					"returns", "return", "refund", "exchange", "replace",
					"ferot", "taka ferot", "bodlate chai",
				},
				Reply: "Items can be returned within 7 days of delivery if unused, " +
					"with tags and original packaging. " +
					"Please send your order ID, the item name and a photo of the product to start a return or refund.",
			},
			{
				Name: CategoryPayment,
				Keywords: []string{
					"payment issue", "payment", "paid", "transaction", "bkash", "nagad",
					"rocket", "card", "taka kete", "payment hoy nai",
				},
				Reply: "Sorry about the payment trouble. Please send us your order ID, " +
					"the payment method you used (bKash, Nagad, Rocket or card) " +
					"and the transaction ID so we can check it.",
			},
			{
				Name: CategorySize,
				Keywords: []string{
					"size guide", "size", "sizing", "fit", "measurement", "mapa", "kon size",
				},
				Reply: "Save your measurements under My Account > Measurements and " +
					"each product page will suggest the size that fits you best.",
			},
		},
	}
}
