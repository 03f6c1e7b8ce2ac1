package zuva

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_SpanDerivedPageAndBoundingBox(t *testing.T) {
	payload := `{"results":[{"field_id":"F1","extractions":[{"text":"Acme","spans":[{"pages":{"start":0},"bboxes":[{"bounds":[{"top":10,"left":5,"bottom":20,"right":50}]}]}]}]}]}`

	parsed, err := Parse([]byte(payload))
	require.NoError(t, err)

	require.Len(t, parsed.Results["F1"], 1)
	ext := parsed.Results["F1"][0]
	assert.Equal(t, "Acme", ext.Text)
	require.NotNil(t, ext.Page)
	assert.Equal(t, 1, *ext.Page)
	require.NotNil(t, ext.BoundingBox)
	assert.Equal(t, 5.0, ext.BoundingBox.Left())
	assert.Equal(t, 20.0, ext.BoundingBox.Bottom())
	assert.Equal(t, 50.0, ext.BoundingBox.Right())
	assert.Equal(t, 10.0, ext.BoundingBox.Top())
	assert.Nil(t, ext.Confidence)
	assert.Empty(t, parsed.AnswerMetadata)
}

func TestParse_TopLevelValuesWin(t *testing.T) {
	payload := `{"results":[{"field_id":"F1","extractions":[{"text":"x","page":2,"confidence":0.9,"bbox":[1,2,3,4],"spans":[{"pages":{"start":7},"score":0.1}]}]}]}`

	parsed, err := Parse([]byte(payload))
	require.NoError(t, err)

	ext := parsed.Results["F1"][0]
	assert.Equal(t, 3, *ext.Page)
	assert.InDelta(t, 0.9, *ext.Confidence, 1e-9)
	assert.Equal(t, 1.0, ext.BoundingBox.Left())
	assert.Equal(t, 4.0, ext.BoundingBox.Top())
}

func TestParse_ConfidenceFromSpanScore(t *testing.T) {
	payload := `{"results":[{"field_id":"F1","extractions":[{"text":"x","spans":[{"score":0.42}]}]}]}`

	parsed, err := Parse([]byte(payload))
	require.NoError(t, err)

	ext := parsed.Results["F1"][0]
	require.NotNil(t, ext.Confidence)
	assert.InDelta(t, 0.42, *ext.Confidence, 1e-9)
	assert.Nil(t, ext.Page)
	assert.Nil(t, ext.BoundingBox)
}

func TestParse_MissingExtractionsYieldEmptyList(t *testing.T) {
	for name, payload := range map[string]string{
		"null":    `{"results":[{"field_id":"F2","extractions":null}]}`,
		"absent":  `{"results":[{"field_id":"F2"}]}`,
		"empty":   `{"results":[{"field_id":"F2","extractions":[]}]}`,
		"answers": `{"results":[{"field_id":"F2","extractions":[],"answers":null}]}`,
	} {
		t.Run(name, func(t *testing.T) {
			parsed, err := Parse([]byte(payload))
			require.NoError(t, err)

			got, ok := parsed.Results["F2"]
			assert.True(t, ok)
			assert.NotNil(t, got)
			assert.Empty(t, got)
		})
	}
}

func TestParse_ClassificationFieldsOnlyInAnswerMetadata(t *testing.T) {
	payload := `{"results":[
		{"field_id":"F3","field_name":"Governing law","answers":[{"option":"a","value":"Ontario"}]},
		{"field_id":"F4","extractions":[{"text":"Acme"}]}
	]}`

	parsed, err := Parse([]byte(payload))
	require.NoError(t, err)

	_, inResults := parsed.Results["F3"]
	assert.False(t, inResults)

	meta := parsed.AnswerMetadata["F3"]
	require.NotNil(t, meta)
	assert.True(t, meta.HasAnswers)
	assert.Equal(t, "Governing law", meta.FieldName)
	require.Len(t, meta.Answers, 1)
	assert.Equal(t, "a", meta.Answers[0].Option)
	assert.Equal(t, "Ontario", meta.Answers[0].Value)

	_, inMeta := parsed.AnswerMetadata["F4"]
	assert.False(t, inMeta)
	assert.Len(t, parsed.Results["F4"], 1)
}

func TestParse_RepeatedFieldAppends(t *testing.T) {
	payload := `{"results":[
		{"field_id":"F1","extractions":[{"text":"one"}]},
		{"field_id":"F1","extractions":[{"text":"two"}]},
		{"field_id":"F3","answers":{"key":"b","text":"No"}},
		{"field_id":"F3","answers":[{"option":"c","value":3}]}
	]}`

	parsed, err := Parse([]byte(payload))
	require.NoError(t, err)

	require.Len(t, parsed.Results["F1"], 2)
	assert.Equal(t, "one", parsed.Results["F1"][0].Text)
	assert.Equal(t, "two", parsed.Results["F1"][1].Text)

	answers := parsed.AnswerMetadata["F3"].Answers
	require.Len(t, answers, 2)
	assert.Equal(t, "b", answers[0].Option)
	assert.Equal(t, "No", answers[0].Value)
	assert.Equal(t, "3", answers[1].Value)
}

func TestParse_EdgeCases(t *testing.T) {
	t.Run("empty payload", func(t *testing.T) {
		parsed, err := Parse([]byte(`{}`))
		require.NoError(t, err)
		assert.Empty(t, parsed.Results)
		assert.Empty(t, parsed.AnswerMetadata)
	})

	t.Run("null payload", func(t *testing.T) {
		parsed, err := Parse(nil)
		require.NoError(t, err)
		assert.NotNil(t, parsed.Results)
	})

	t.Run("malformed payload", func(t *testing.T) {
		_, err := Parse([]byte(`{"results":`))
		assert.Error(t, err)
	})

	t.Run("entries without field id are skipped", func(t *testing.T) {
		parsed, err := Parse([]byte(`{"results":[{"extractions":[{"text":"x"}]},"junk"]}`))
		require.NoError(t, err)
		assert.Empty(t, parsed.Results)
	})

	t.Run("missing bound coordinates default to zero", func(t *testing.T) {
		payload := `{"results":[{"field_id":"F1","extractions":[{"spans":[{"bboxes":[{"bounds":[{"left":3,"right":9}]}]}]}]}]}`
		parsed, err := Parse([]byte(payload))
		require.NoError(t, err)

		box := parsed.Results["F1"][0].BoundingBox
		require.NotNil(t, box)
		assert.Equal(t, 3.0, box.Left())
		assert.Equal(t, 0.0, box.Bottom())
		assert.Equal(t, 9.0, box.Right())
		assert.Equal(t, 0.0, box.Top())
	})

	t.Run("spans default to empty list", func(t *testing.T) {
		parsed, err := Parse([]byte(`{"results":[{"field_id":"F1","extractions":[{"text":"x"}]}]}`))
		require.NoError(t, err)
		assert.JSONEq(t, `[]`, string(parsed.Results["F1"][0].Spans))
	})
}

func TestBoundingBoxFromSpans(t *testing.T) {
	box := BoundingBoxFromSpans([]byte(`[{"bboxes":[{"bounds":[{"top":1,"left":2,"bottom":3,"right":4}]}]}]`))
	require.NotNil(t, box)
	assert.Equal(t, 2.0, box.Left())
	assert.Equal(t, 3.0, box.Bottom())
	assert.Equal(t, 4.0, box.Right())
	assert.Equal(t, 1.0, box.Top())

	assert.Nil(t, BoundingBoxFromSpans(nil))
	assert.Nil(t, BoundingBoxFromSpans([]byte(`[]`)))
	assert.Nil(t, BoundingBoxFromSpans([]byte(`[{"pages":{"start":0}}]`)))
}
