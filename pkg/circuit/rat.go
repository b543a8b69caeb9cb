package circuit

import "math/big"

func negRat(v *big.Rat) *big.Rat { return new(big.Rat).Neg(v) }
