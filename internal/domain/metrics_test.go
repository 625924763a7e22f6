package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestYearCountsMarshalsAscending(t *testing.T) {
	counts := YearCounts{2018: 2, 2016: 5, 2017: 1}

	data, err := json.Marshal(counts)
	require.NoError(t, err)
	assert.Equal(t, `{"2016":5,"2017":1,"2018":2}`, string(data))

	var decoded YearCounts
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, counts, decoded)
}

func TestYearCountsEmpty(t *testing.T) {
	data, err := json.Marshal(YearCounts{})
	require.NoError(t, err)
	assert.Equal(t, `{}`, string(data))
}

func TestYearCountsRejectsNonNumericKey(t *testing.T) {
	var decoded YearCounts
	assert.Error(t, json.Unmarshal([]byte(`{"twenty":1}`), &decoded))
}
