package queue

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAuditLineReservation(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	body, err := json.Marshal(ReservationEvent{
		Type:           QueueReservationExpired,
		ReservationID:  "r1",
		EventSessionID: "s1",
		EventTitle:     "Jazz Night",
		Quantity:       2,
		TotalAmount:    5000,
		Currency:       "EUR",
		Reason:         "card declined",
		OccurredAt:     at,
	})
	require.NoError(t, err)

	line, err := FormatAuditLine(QueueReservationExpired, body)
	require.NoError(t, err)
	assert.Equal(t,
		"[2026-03-01T12:00:00Z] Reservation expired | reservation_id=r1 | session_id=s1 | event=\"Jazz Night\" | qty=2 | total=5000 EUR | reason=\"card declined\"\n",
		line)
}

func TestFormatAuditLineAlert(t *testing.T) {
	body, err := json.Marshal(OpsAlert{
		Kind:       "orphaned_payment_intent",
		Message:    "cancel failed",
		Fields:     map[string]string{"payment_intent_id": "pi_1", "reservation_id": "r1"},
		OccurredAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	line, err := FormatAuditLine(QueueOpsAlerts, body)
	require.NoError(t, err)
	assert.Equal(t, "[2026-03-01T12:00:00Z] ALERT orphaned_payment_intent | cancel failed | payment_intent_id=pi_1 | reservation_id=r1\n", line)
}

func TestAuditConsumerAppend(t *testing.T) {
	dir := t.TempDir()
	c := NewAuditConsumer("amqp://unused", filepath.Join(dir, "logs"), logrus.New())

	body, _ := json.Marshal(ReservationEvent{ReservationID: "r1", OccurredAt: time.Now()})
	require.NoError(t, c.append(QueueReservationConfirmed, body))
	require.NoError(t, c.append(QueueReservationConfirmed, body))

	data, err := os.ReadFile(filepath.Join(dir, "logs", "booking.log"))
	require.NoError(t, err)
	assert.Equal(t, 2, len(splitLines(string(data))))

	assert.Error(t, c.append(QueueReservationConfirmed, []byte("{not json")))
}

func splitLines(s string) []string {
	var out []string
	start := 0
	for i := range s {
		if s[i] == '\n' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return out
}
