package encoder

import (
	"fmt"
	"math"

	"github.com/samuelfneumann/goa3c/utils/floatutils"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/spatial/r1"
	"gonum.org/v1/gonum/stat/distmv"
	"gonum.org/v1/gonum/stat/samplemv"
)

// Controls tiling offsets. For each dimension, tilings are offset by
// randomly sampling from a uniform distribution with support
// [- tiling width/OffsetDiv, tiling width/OffsetDiv]
const OffsetDiv float64 = 1.5

// TileCoding encodes an observation by appending the tile-coded info
// vector to the image. Tile coding takes a bounded, low-dimensional
// vector and changes it into a large, sparse vector consisting of only
// 0's and 1's, one 1 per tiling:
//
//	[0.5, 0.1] -> [0, 0, 0, 1, 0, 0, 1, 0]
//
// Each dimension of the info vector is fully tiled by every tiling;
// hash-based tile coding is not used.
type TileCoding struct {
	imageSize   int
	minDims     []float64
	offsets     []*mat.Dense
	bins        [][]int
	binLengths  [][]float64
	includeBias bool
}

// NewTileCoding returns a new TileCoding encoder for images of
// imageSize values. The minDims and maxDims arguments are the bounds
// on each dimension of the info vector between which tilings are
// placed.
//
// The number of elements in bins determines the number of tilings to
// use, and bins[i][j] is the number of tiles along dimension j of
// tiling i. For example, if bins := [][]int{{2, 2}, {4, 3}}, then two
// tilings are used: a 2x2 tiling and a 4x3 tiling.
//
// The parameter includeBias determines whether or not a bias unit is
// kept as the first unit of the tile coded representation.
func NewTileCoding(imageSize int, minDims, maxDims []float64, bins [][]int,
	seed uint64, includeBias bool) (*TileCoding, error) {
	if imageSize < 0 {
		return nil, fmt.Errorf("newTileCoding: image size must be "+
			"non-negative, have(%v)", imageSize)
	}
	if len(minDims) != len(maxDims) {
		return nil, fmt.Errorf("newTileCoding: cannot specify minimum with "+
			"different dimensions than maximum: %d != %d", len(minDims),
			len(maxDims))
	}
	if len(minDims) == 0 {
		return nil, fmt.Errorf("newTileCoding: no dimensions to tile")
	}
	if len(bins) == 0 {
		return nil, fmt.Errorf("newTileCoding: cannot have less than 1 " +
			"tiling")
	}

	// Calculate the length of bins and the tiling offset bounds
	var bounds []r1.Interval
	numTilings := len(bins)
	binLengths := make([][]float64, numTilings)

	for j := 0; j < numTilings; j++ {
		if len(bins[j]) != len(minDims) {
			return nil, fmt.Errorf("newTileCoding: there should be a single "+
				"number of bins for each dimension: \n\thave(%d) \n\twant(%d)",
				len(bins[j]), len(minDims))
		}
		binLengths[j] = make([]float64, len(minDims))

		for i := range minDims {
			if bins[j][i] <= 0 {
				return nil, fmt.Errorf("newTileCoding: tiling %v has %v "+
					"tiles along dimension %v", j, bins[j][i], i)
			}
			if maxDims[i] <= minDims[i] {
				return nil, fmt.Errorf("newTileCoding: empty range [%v, %v] "+
					"along dimension %v", minDims[i], maxDims[i], i)
			}

			binLength := (maxDims[i] - minDims[i]) / float64(bins[j][i])
			bound := binLength / OffsetDiv // Bounds tiling offsets

			binLengths[j][i] = binLength
			bounds = append(bounds, r1.Interval{Min: -bound, Max: bound})
		}
	}

	// Uniform sampling of tiling offsets
	u := distmv.NewUniform(bounds, rand.NewSource(seed))
	sampler := samplemv.IID{Dist: u}

	offsets := make([]*mat.Dense, numTilings)
	for i := range offsets {
		samples := mat.NewDense(1, len(bounds), nil)
		sampler.Sample(samples)
		offsets[i] = samples
	}

	mins := make([]float64, len(minDims))
	copy(mins, minDims)

	return &TileCoding{
		imageSize:   imageSize,
		minDims:     mins,
		offsets:     offsets,
		bins:        bins,
		binLengths:  binLengths,
		includeBias: includeBias,
	}, nil
}

// Encode implements the Encoder interface
func (t *TileCoding) Encode(image, info []float64) ([]float64, error) {
	if len(image) != t.imageSize {
		return nil, fmt.Errorf("encode: invalid image size\n\twant(%v)"+
			"\n\thave(%v)", t.imageSize, len(image))
	}
	if len(info) != len(t.minDims) {
		return nil, fmt.Errorf("encode: invalid info size\n\twant(%v)"+
			"\n\thave(%v)", len(t.minDims), len(info))
	}

	features := make([]float64, t.Features())
	copy(features, image)

	tileCoded := features[t.imageSize:]
	for _, index := range t.EncodeIndices(info) {
		tileCoded[index] = 1.0
	}
	return features, nil
}

// Features implements the Encoder interface
func (t *TileCoding) Features() int {
	return t.imageSize + t.VecLength()
}

// EncodeIndices returns the indices of the non-zero elements of the
// tile-coded info vector
func (t *TileCoding) EncodeIndices(info []float64) []int {
	indices := make([]int, 0, t.NumTilings()+1)
	if t.includeBias {
		indices = append(indices, 0)
	}
	for i := 0; i < t.NumTilings(); i++ {
		indices = append(indices, t.encodeWithTiling(info, i))
	}
	return indices
}

// encodeWithTiling returns the index of the tile coded feature vector
// which should be a 1.0 when v is encoded with tiling number tiling
func (t *TileCoding) encodeWithTiling(v []float64, tiling int) int {
	bias := 0
	if t.includeBias {
		bias = 1
	}

	// The index is computed in row-major order over the tiles of the
	// tiling, with the last dimension varying fastest
	index, stride := 0, 1
	for i := len(t.bins[tiling]) - 1; i > -1; i-- {
		data := v[i] + t.offsets[tiling].At(0, i)
		tile := math.Floor((data - t.minDims[i]) / t.binLengths[tiling][i])

		// Out-of-bounds values fall in the closest tile
		tile = floatutils.Clip(tile, 0.0, float64(t.bins[tiling][i]-1))

		index += int(tile) * stride
		stride *= t.bins[tiling][i]
	}
	return t.featuresBeforeTiling(tiling) + index + bias
}

// featuresBeforeTiling calculates how many features exist in the
// tile-coded representation before tiling number i
func (t *TileCoding) featuresBeforeTiling(i int) int {
	features := 0
	for j := 0; j < i; j++ {
		features += prod(t.bins[j])
	}
	return features
}

// VecLength returns the number of features in a tile-coded info vector
func (t *TileCoding) VecLength() int {
	length := t.featuresBeforeTiling(t.NumTilings())
	if t.includeBias {
		return length + 1
	}
	return length
}

// NumTilings returns the number of tilings used to encode info vectors
func (t *TileCoding) NumTilings() int {
	return len(t.bins)
}

// String returns a string representation of a *TileCoding
func (t *TileCoding) String() string {
	return fmt.Sprintf("Image: %d  |  Tilings %d  |  Tiles: %v", t.imageSize,
		t.NumTilings(), t.bins)
}

// prod calculates the product of all integers in a []int
func prod(i []int) int {
	prod := 1
	for _, v := range i {
		prod *= v
	}
	return prod
}
