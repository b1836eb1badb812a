package config

import (
	"fmt"
	"os"
	"strings"

	"cosmiccafe/internal/game"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// LenderFile is the on-disk lender table. Entries override the built-in
// lender with the same id; omitted fields keep the built-in value.
type LenderFile struct {
	Lenders []LenderEntry `yaml:"lenders" validate:"dive"`
}

type LenderEntry struct {
	ID           string    `yaml:"id" validate:"required,oneof=banker_bard poultry_guy_pip farmer_finn witch_of_woe"`
	Name         string    `yaml:"name"`
	Policy       string    `yaml:"policy" validate:"omitempty,oneof=fixed dynamic"`
	Rate         *float64  `yaml:"rate" validate:"omitempty,gte=0,lte=1"`
	Disburses    string    `yaml:"disburses" validate:"omitempty,oneof=money stock"`
	Tiers        []float64 `yaml:"tiers" validate:"omitempty,dive,gt=0"`
	Pitch        string    `yaml:"pitch"`
	StockForSale *float64  `yaml:"stock_for_sale" validate:"omitempty,gte=0"`
	StockPrice   *float64  `yaml:"stock_price" validate:"omitempty,gte=0"`
}

// LoadLenders builds the lender registry. An empty path yields the built-in
// table.
func LoadLenders(path string) (*game.Registry, error) {
	if strings.TrimSpace(path) == "" {
		return game.NewRegistry(game.DefaultLenders())
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open lenders file: %w", err)
	}
	defer file.Close()

	var doc LenderFile
	decoder := yaml.NewDecoder(file)
	decoder.KnownFields(true)
	if err := decoder.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode lenders file: %w", err)
	}
	return doc.Registry()
}

func (f LenderFile) Registry() (*game.Registry, error) {
	f.normalize()
	if err := Validate(f); err != nil {
		return nil, err
	}
	lenders := game.DefaultLenders()
	index := make(map[game.LenderID]int, len(lenders))
	for i, l := range lenders {
		index[l.ID] = i
	}
	seen := make(map[game.LenderID]bool, len(f.Lenders))
	for _, e := range f.Lenders {
		id := game.LenderID(e.ID)
		if seen[id] {
			return nil, fmt.Errorf("lender %q listed twice", e.ID)
		}
		seen[id] = true
		i := index[id]
		lenders[i] = e.apply(lenders[i])
	}
	return game.NewRegistry(lenders)
}

func (f *LenderFile) normalize() {
	for i := range f.Lenders {
		e := &f.Lenders[i]
		if id, err := game.ParseLenderID(e.ID); err == nil {
			e.ID = id.String()
		}
		e.Name = strings.TrimSpace(e.Name)
		e.Policy = strings.ToLower(strings.TrimSpace(e.Policy))
		e.Disburses = strings.ToLower(strings.TrimSpace(e.Disburses))
		e.Pitch = strings.TrimSpace(e.Pitch)
	}
}

func (e LenderEntry) apply(l game.Lender) game.Lender {
	if e.Name != "" {
		l.Name = e.Name
	}
	if e.Policy != "" {
		l.Policy = game.Policy(e.Policy)
	}
	if e.Rate != nil {
		l.Rate = decimal.NewFromFloat(*e.Rate)
	}
	if e.Disburses != "" {
		l.Disburses = game.Disbursement(e.Disburses)
	}
	if len(e.Tiers) > 0 {
		l.Tiers = make([]decimal.Decimal, 0, len(e.Tiers))
		for _, t := range e.Tiers {
			l.Tiers = append(l.Tiers, game.RoundGold(decimal.NewFromFloat(t)))
		}
	}
	if e.Pitch != "" {
		l.Pitch = e.Pitch
	}
	if e.StockForSale != nil {
		l.StockForSale = decimal.NewFromFloat(*e.StockForSale)
	}
	if e.StockPrice != nil {
		l.StockPrice = game.RoundGold(decimal.NewFromFloat(*e.StockPrice))
	}
	return l
}
