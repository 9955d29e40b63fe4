package alerts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vidpulse/vidpulse/pkg/alerts"
)

func TestSlackNotifier_Name(t *testing.T) {
	n := alerts.NewSlackNotifier("https://hooks.slack.com/test", "#test")
	assert.Equal(t, "slack", n.Name())
}

func TestSlackNotifier_Send(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.Equal(t, http.MethodPost, r.Method)

		err := json.NewDecoder(r.Body).Decode(&received)
		require.NoError(t, err)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "#vidpulse-quota")

	alert := alerts.Alert{
		Level:        alerts.AlertWarning,
		Credential:   "default",
		UsedUnits:    8200,
		BudgetUnits:  10000,
		ThresholdPct: 80.0,
		Message:      "Quota at 82%",
	}

	err := n.Send(context.Background(), alert)
	require.NoError(t, err)
	assert.Equal(t, "#vidpulse-quota", received["channel"])
	assert.NotNil(t, received["attachments"])
}

func TestSlackNotifier_Send_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	n := alerts.NewSlackNotifier(server.URL, "#test")
	err := n.Send(context.Background(), alerts.Alert{Level: alerts.AlertWarning})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestSlackNotifier_AlertLevels(t *testing.T) {
	for _, level := range []alerts.AlertLevel{
		alerts.AlertWarning,
		alerts.AlertCritical,
		alerts.AlertExceeded,
	} {
		t.Run(string(level), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			n := alerts.NewSlackNotifier(server.URL, "#test")
			err := n.Send(context.Background(), alerts.Alert{
				Level:       level,
				UsedUnits:   5000,
				BudgetUnits: 10000,
			})
			require.NoError(t, err)
		})
	}
}
