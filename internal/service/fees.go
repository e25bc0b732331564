package service

import (
	"fmt"
	"math/rand"
)

// platformFee computes the platform's cut in cents from a basis-point
// commission rate, rounding half-up. Pure integer arithmetic so the fee
// and the implied net always reconcile exactly against the total.
func platformFee(totalCents int64, commissionBps int) int64 {
	return (totalCents*int64(commissionBps) + 5000) / 10000
}

// newPickupCode returns a random 6-digit code for restaurant staff to
// identify the order at collection. Codes are only looked up within one
// restaurant's scope, so collisions across restaurants are harmless and
// rare enough within one to tolerate.
func newPickupCode() string {
	return fmt.Sprintf("%06d", rand.Intn(1000000))
}
