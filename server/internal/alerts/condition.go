package alerts

import (
	"strconv"
	"strings"
)

// evalCondition evaluates a rule condition string against a stake event.
//
// Supported expressions (field operator value):
//
//	stake >= 10000     the submitted stake
//	rank == 1          1-based position of the stake on its board, 0 if not retained
//	entries >= 20      board size after the submission
//
// Returns (fires bool, triggering value int).
// Returns (false, 0) if the expression cannot be parsed or the field is unknown.
func evalCondition(cond string, ev Event) (bool, int) {
	parts := strings.Fields(cond)
	if len(parts) != 3 {
		return false, 0
	}
	field, op, rhs := parts[0], parts[1], parts[2]

	threshold, err := strconv.Atoi(rhs)
	if err != nil {
		return false, 0
	}

	var v int
	switch field {
	case "stake":
		v = ev.Stake
	case "rank":
		// A stake that fell off the board has no rank to compare.
		if ev.Rank == 0 {
			return false, 0
		}
		v = ev.Rank
	case "entries":
		v = ev.Entries
	default:
		return false, 0
	}
	return compareInt(v, op, threshold), v
}

// compareInt applies a comparison operator to two ints.
func compareInt(v int, op string, threshold int) bool {
	switch op {
	case ">":
		return v > threshold
	case ">=":
		return v >= threshold
	case "<":
		return v < threshold
	case "<=":
		return v <= threshold
	case "==":
		return v == threshold
	default:
		return false
	}
}
