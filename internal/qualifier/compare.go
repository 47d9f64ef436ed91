package qualifier

// Comparison operators.
const (
	OpMoreThan    = "mt"
	OpLessThan    = "lt"
	OpAnythingBut = "ab"
	OpEqual       = "eq"
)

// Set and presence operators.
const (
	OpHas       = "has"
	OpNotHas    = "not_has"
	OpExists    = "exists"
	OpNotExists = "not_exists"
)

// Set match modes.
const (
	MatchAny = "any"
	MatchAll = "all"
)

// Compare applies a comparison operator to a and b. Unknown operators never
// match.
func Compare(op string, a, b float64) bool {
	switch op {
	case OpMoreThan:
		return a > b
	case OpLessThan:
		return a < b
	case OpAnythingBut:
		return a != b
	case OpEqual:
		return a == b
	}
	return false
}

// Exists applies an exists/not_exists operator to a presence flag.
func Exists(op string, present bool) bool {
	switch op {
	case OpExists:
		return present
	case OpNotExists:
		return !present
	}
	return false
}

func applyHas(op string, found bool) bool {
	switch op {
	case OpHas:
		return found
	case OpNotHas:
		return !found
	}
	return false
}

// SetMatch tests selected against have. MatchAny needs one common element,
// MatchAll needs every selected element present.
func SetMatch(mode string, selected, have []string) (bool, bool) {
	index := make(map[string]struct{}, len(have))
	for _, h := range have {
		index[h] = struct{}{}
	}
	switch mode {
	case MatchAny:
		for _, s := range selected {
			if _, ok := index[s]; ok {
				return true, true
			}
		}
		return false, true
	case MatchAll:
		for _, s := range selected {
			if _, ok := index[s]; !ok {
				return false, true
			}
		}
		return true, true
	}
	return false, false
}

// LogicText renders an operator for error messages.
func LogicText(op string) string {
	switch op {
	case OpMoreThan:
		return "more than"
	case OpLessThan:
		return "less than"
	case OpAnythingBut:
		return "anything but"
	case OpEqual:
		return "exactly"
	}
	return ""
}

func isCompareOp(op string) bool {
	switch op {
	case OpMoreThan, OpLessThan, OpAnythingBut, OpEqual:
		return true
	}
	return false
}

func isHasOp(op string) bool { return op == OpHas || op == OpNotHas }

func isExistsOp(op string) bool { return op == OpExists || op == OpNotExists }
