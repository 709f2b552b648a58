package chassis

import (
	"math"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	require.NoError(t, Geometry{TrackWidth: 28, WheelbaseLength: 28}.Validate())
	require.NoError(t, Geometry{TrackWidth: 0.5, WheelbaseLength: 30}.Validate())

	for _, g := range []Geometry{
		{},
		{TrackWidth: 0, WheelbaseLength: 28},
		{TrackWidth: 28, WheelbaseLength: -1},
		{TrackWidth: math.NaN(), WheelbaseLength: 28},
		{TrackWidth: 28, WheelbaseLength: math.Inf(1)},
	} {
		err := g.Validate()
		assert.Error(t, err, "%+v", g)
		assert.Equal(t, ErrInvalidGeometry, errors.Cause(err), "%+v", g)
	}
}

func TestRelative(t *testing.T) {
	g := Geometry{TrackWidth: 3, WheelbaseLength: 4}
	assert.Equal(t, 5.0, g.Radius())
	l, w := g.Relative()
	assert.InDelta(t, 0.8, l, 1e-12)
	assert.InDelta(t, 0.6, w, 1e-12)
}
