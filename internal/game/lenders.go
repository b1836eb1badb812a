package game

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// LenderID identifies one of the known lenders. The set is closed.
type LenderID string

const (
	LenderBanker  LenderID = "banker_bard"
	LenderPoultry LenderID = "poultry_guy_pip"
	LenderFarmer  LenderID = "farmer_finn"
	LenderWitch   LenderID = "witch_of_woe"
)

func AllLenderIDs() []LenderID {
	return []LenderID{LenderBanker, LenderFarmer, LenderPoultry, LenderWitch}
}

func (id LenderID) String() string {
	return string(id)
}

func (id LenderID) IsValid() bool {
	switch id {
	case LenderBanker, LenderPoultry, LenderFarmer, LenderWitch:
		return true
	default:
		return false
	}
}

// ParseLenderID accepts ids in any case, with spaces or dashes for underscores.
func ParseLenderID(s string) (LenderID, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	id := LenderID(norm)
	if !id.IsValid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownLender, s)
	}
	return id, nil
}

type Policy string

const (
	PolicyFixed   Policy = "fixed"
	PolicyDynamic Policy = "dynamic"
)

// Disbursement says where a loan's principal lands.
type Disbursement string

const (
	DisburseMoney Disbursement = "money"
	DisburseStock Disbursement = "stock"
)

type Lender struct {
	ID        LenderID          `json:"id"`
	Name      string            `json:"name"`
	Policy    Policy            `json:"policy"`
	Rate      decimal.Decimal   `json:"rate"`
	Disburses Disbursement      `json:"disburses"`
	Tiers     []decimal.Decimal `json:"tiers,omitempty"`
	Pitch     string            `json:"pitch,omitempty"`

	StockForSale decimal.Decimal `json:"stock_for_sale"`
	StockPrice   decimal.Decimal `json:"stock_price"`
}

func (l Lender) Dynamic() bool {
	return l.Policy == PolicyDynamic
}

func (l Lender) SellsStock() bool {
	return l.StockForSale.IsPositive() && l.StockPrice.IsPositive()
}

// DefaultLenders is the town's lender table.
func DefaultLenders() []Lender {
	return []Lender{
		{
			ID:        LenderBanker,
			Name:      "Banker Bard",
			Policy:    PolicyDynamic,
			Rate:      decimal.RequireFromString("0.02"),
			Disburses: DisburseMoney,
			Pitch:     "Fair rates for steady earners.",
		},
		{
			ID:           LenderPoultry,
			Name:         "Poultry Guy Pip",
			Policy:       PolicyFixed,
			Rate:         decimal.RequireFromString("0.10"),
			Disburses:    DisburseStock,
			Tiers:        []decimal.Decimal{decimal.NewFromInt(25), decimal.NewFromInt(15)},
			Pitch:        "Stock now, pay later. Ten percent, every time.",
			StockForSale: decimal.NewFromInt(10),
			StockPrice:   decimal.NewFromInt(20),
		},
		{
			ID:           LenderFarmer,
			Name:         "Farmer Finn",
			Policy:       PolicyFixed,
			Rate:         decimal.RequireFromString("0.08"),
			Disburses:    DisburseStock,
			Tiers:        []decimal.Decimal{decimal.NewFromInt(10), decimal.NewFromInt(5)},
			Pitch:        "Just a little help to get you through the week.",
			StockForSale: decimal.NewFromInt(5),
			StockPrice:   decimal.NewFromInt(10),
		},
		{
			ID:        LenderWitch,
			Name:      "Witch of Woe",
			Policy:    PolicyFixed,
			Rate:      decimal.RequireFromString("0.25"),
			Disburses: DisburseMoney,
			Tiers:     []decimal.Decimal{decimal.NewFromInt(50), decimal.NewFromInt(100)},
			Pitch:     "Gold, right now, no questions asked.",
		},
	}
}

// Registry is the immutable lender table built at startup.
type Registry struct {
	byID  map[LenderID]Lender
	order []LenderID
}

func NewRegistry(lenders []Lender) (*Registry, error) {
	r := &Registry{byID: make(map[LenderID]Lender, len(lenders))}
	for _, l := range lenders {
		if !l.ID.IsValid() {
			return nil, fmt.Errorf("%w: %q", ErrUnknownLender, l.ID)
		}
		if _, dup := r.byID[l.ID]; dup {
			return nil, fmt.Errorf("duplicate lender %q", l.ID)
		}
		if l.Rate.IsNegative() {
			return nil, fmt.Errorf("lender %q: rate must be >= 0", l.ID)
		}
		if l.Policy != PolicyFixed && l.Policy != PolicyDynamic {
			return nil, fmt.Errorf("lender %q: unknown policy %q", l.ID, l.Policy)
		}
		if l.Disburses != DisburseMoney && l.Disburses != DisburseStock {
			return nil, fmt.Errorf("lender %q: unknown disbursement %q", l.ID, l.Disburses)
		}
		if l.Policy == PolicyFixed && len(l.Tiers) == 0 {
			return nil, fmt.Errorf("lender %q: fixed lenders need at least one tier", l.ID)
		}
		for _, t := range l.Tiers {
			if !t.IsPositive() {
				return nil, fmt.Errorf("lender %q: tiers must be > 0", l.ID)
			}
		}
		l.Tiers = append([]decimal.Decimal(nil), l.Tiers...)
		r.byID[l.ID] = l
		r.order = append(r.order, l.ID)
	}
	sort.Slice(r.order, func(i, j int) bool { return r.order[i] < r.order[j] })
	return r, nil
}

func MustDefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultLenders())
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Get(id LenderID) (Lender, error) {
	l, ok := r.byID[id]
	if !ok {
		return Lender{}, fmt.Errorf("%w: %q", ErrUnknownLender, id)
	}
	l.Tiers = append([]decimal.Decimal(nil), l.Tiers...)
	return l, nil
}

// IDs returns lender ids in sort order, the order accrual passes use.
func (r *Registry) IDs() []LenderID {
	return append([]LenderID(nil), r.order...)
}

func (r *Registry) All() []Lender {
	out := make([]Lender, 0, len(r.order))
	for _, id := range r.order {
		l, _ := r.Get(id)
		out = append(out, l)
	}
	return out
}

func (l Lender) tierFor(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() {
		return l.Tiers[0], nil
	}
	for _, t := range l.Tiers {
		if t.Equal(amount) {
			return t, nil
		}
	}
	return decimal.Zero, fmt.Errorf("%w: %s does not lend %s", ErrInvalidAmount, l.Name, amount.String())
}
