package pump

import "errors"

// ErrVolumeNotConserved is the fatal per-tick assertion of spec §4.3 /
// §8 invariant 1: |alt_media_ml + media_ml - waste_ml| must stay under 1e-5.
var ErrVolumeNotConserved = errors.New("pump: alt_media_ml + media_ml != waste_ml")

// ErrNegativeVolume guards the "each value >= 0" precondition.
var ErrNegativeVolume = errors.New("pump: volumes must be non-negative")
