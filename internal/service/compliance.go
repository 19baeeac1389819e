package service

// sanctionedCountries is the canonical-name denylist. Matching is
// exact and case-sensitive: billing forms submit these names verbatim
// from a fixed country picker, so no normalization is applied.
var sanctionedCountries = map[string]struct{}{
	"North Korea": {},
	"Iran":        {},
	"Syria":       {},
	"Cuba":        {},
	"Sudan":       {},
	"Russia":      {},
	"Belarus":     {},
	"Myanmar":     {},
}

// CheckCompliance rejects billing countries under embargo. It runs
// before any lookup, charge, or write, and has no side effects. An
// empty country passes.
func CheckCompliance(billingCountry string) *PaymentError {
	if billingCountry == "" {
		return nil
	}
	if _, blocked := sanctionedCountries[billingCountry]; blocked {
		return &PaymentError{
			Code:    ErrCompliance,
			Message: "We are unable to process payments from your region. See sections 9.2 and 14.1 of our Terms of Service.",
		}
	}
	return nil
}
