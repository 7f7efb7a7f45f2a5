package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/gradebridge-backend/internal/reconcile/activity"
	"github.com/yungbote/gradebridge-backend/internal/reconcile/importer"
)

func TestDecodeBatchAcceptsEnvelopeAndBareRecords(t *testing.T) {
	b, err := decodeBatch([]byte(`{"mode":"audit","match_mode":"structured_code","records":[{"student_label":"Doe, Jane","class_label":"Biology A"}]}`))
	require.NoError(t, err)
	assert.Equal(t, importer.ModeAudit, b.Mode)
	assert.Equal(t, activity.ModeStructuredCode, b.MatchMode)
	require.Len(t, b.Records, 1)
	assert.Equal(t, "Biology A", b.Records[0].ClassLabel)

	b, err = decodeBatch([]byte(`[{"student_label":"Ng, Ben","class_label":"Algebra I"},{"student_label":"Doe, Jane","class_label":"Biology A"}]`))
	require.NoError(t, err)
	assert.Empty(t, b.Mode)
	assert.Len(t, b.Records, 2)

	_, err = decodeBatch([]byte(`not json`))
	require.Error(t, err)
}
