package geo_test

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transit-core/internal/geo"
)

func TestCoords_JSON(t *testing.T) {
	b, err := json.Marshal(geo.NewCoords(46.0667, 11.1211))
	require.NoError(t, err)
	assert.JSONEq(t, `[46.0667, 11.1211]`, string(b))

	var c geo.Coords
	require.NoError(t, json.Unmarshal([]byte(`[46.0667, 11.1211]`), &c))
	assert.Equal(t, geo.NewCoords(46.0667, 11.1211), c)

	// swapped producers are repaired
	require.NoError(t, json.Unmarshal([]byte(`[11.1211, 46.0667]`), &c))
	assert.Equal(t, geo.NewCoords(46.0667, 11.1211), c)

	for _, bad := range []string{`[]`, `[1]`, `[1, 2, 3]`, `{"lat": 1}`, `"x"`} {
		assert.Error(t, json.Unmarshal([]byte(bad), &c), bad)
	}
}

func TestCoords_Distance(t *testing.T) {
	a := geo.NewCoords(46.0, 11.0)
	assert.InDelta(t, 0, a.Distance(a), 1e-9)

	// one degree of latitude is about 111.2 km
	b := geo.NewCoords(47.0, 11.0)
	assert.InDelta(t, 111195, a.Distance(b), 100)
	assert.InDelta(t, a.Distance(b), b.Distance(a), 1e-6)
}

func TestCoords_OSRMQuery(t *testing.T) {
	assert.Equal(t, "11.1211,46.0667", geo.NewCoords(46.0667, 11.1211).OSRMQuery())
}

func TestPolyline(t *testing.T) {
	// Google reference example
	coords := []geo.Coords{
		geo.NewCoords(38.5, -120.2),
		geo.NewCoords(40.7, -120.95),
		geo.NewCoords(43.252, -126.453),
	}
	enc := geo.EncodePolyline(coords)
	assert.Equal(t, "_p~iF~ps|U_ulLnnqC_mqNvxq`@", enc)

	dec, err := geo.DecodePolyline(enc)
	require.NoError(t, err)
	require.Len(t, dec, 3)
	for i := range coords {
		assert.InDelta(t, coords[i].Lat, dec[i].Lat, 1e-5)
		assert.InDelta(t, coords[i].Lng, dec[i].Lng, 1e-5)
	}

	assert.Equal(t, "", geo.EncodePolyline(nil))
	dec, err = geo.DecodePolyline("")
	require.NoError(t, err)
	assert.Nil(t, dec)
}
