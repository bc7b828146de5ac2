package mongostore

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"github.com/OldStager01/cloud-vm-monitor/pkg/models"
)

func TestIndexModels_TTL(t *testing.T) {
	idx := IndexModels()
	require.Len(t, idx, 2)

	ttl := idx[1]
	require.NotNil(t, ttl.Options.ExpireAfterSeconds)
	assert.Equal(t, int32(30*24*60*60), *ttl.Options.ExpireAfterSeconds)
	assert.Equal(t, ttlIndexName, *ttl.Options.Name)
}

func TestQueryFilter(t *testing.T) {
	since := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	f := QueryFilter("vm-1", since)

	assert.Equal(t, "vm-1", f["vm_id"])
	assert.Equal(t, bson.M{"$gte": since}, f["timestamp"])
}

func TestMetricSample_BSONOmitsMissing(t *testing.T) {
	sample := models.MetricSample{
		VMID:           "vm-1",
		Timestamp:      time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		CPUUtilization: models.Float(42),
	}

	raw, err := bson.Marshal(sample)
	require.NoError(t, err)

	var doc bson.M
	require.NoError(t, bson.Unmarshal(raw, &doc))
	assert.Equal(t, 42.0, doc["cpu_utilization"])
	_, hasMemory := doc["memory_utilization"]
	assert.False(t, hasMemory)
}
