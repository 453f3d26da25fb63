package distributor

import (
	"github.com/docstore/distributor/childops"
	"github.com/docstore/distributor/childops/selection"
)

// evaluateCondition is spec.md §4.6's condition evaluator: parse the
// update's test-and-set condition (if any) and evaluate it against the
// candidate document. An empty condition always matches. Parse errors are
// surfaced to the caller, which maps them to ILLEGAL_PARAMETERS.
func (o *Operation) evaluateCondition(doc *childops.Document) (bool, error) {
	if o.cmd.Condition == "" {
		return true, nil
	}
	expr, err := selection.Parse(o.cmd.Condition)
	if err != nil {
		return false, err
	}
	return expr.Eval(doc)
}
