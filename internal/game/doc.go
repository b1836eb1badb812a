// Package game is the cafe's lending and debt engine: the ledger, the lender
// registry, the two-phase loan workflow, interest accrual, the action log and
// win/lose evaluation, tied together by Session.
//
// Gold and stock are shopspring decimals and travel as JSON numbers. Importing
// this package sets decimal.MarshalJSONWithoutQuotes for the whole process;
// any other code in the same binary that encodes decimals gets numbers too.
package game

import "github.com/shopspring/decimal"

func init() {
	decimal.MarshalJSONWithoutQuotes = true
}
