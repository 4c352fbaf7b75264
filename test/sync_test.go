//go:build integration_test || all_tests

package test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/2beens/workoutsync/internal/progress"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (s *IntegrationTestSuite) doRequest(ctx context.Context, method, url string, body any) *http.Response {
	var reqBody io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(s.T(), err)
		reqBody = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reqBody)
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", testUserAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	return resp
}

func (s *IntegrationTestSuite) completeWorkoutRequest(ctx context.Context, id string) (progress.Card, int) {
	resp := s.doRequest(ctx, http.MethodPost, fmt.Sprintf("%s/workouts/%s/complete", serverEndpoint, id), nil)
	defer resp.Body.Close()

	var card progress.Card
	if resp.StatusCode == http.StatusOK {
		require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&card))
	}
	return card, resp.StatusCode
}

func (s *IntegrationTestSuite) recordStatisticsRequest(ctx context.Context, stat progress.StatData) {
	resp := s.doRequest(ctx, http.MethodPost, serverEndpoint+"/statistics", stat)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusNoContent, resp.StatusCode)
}

func (s *IntegrationTestSuite) getLocalSettings(ctx context.Context) progress.Settings {
	resp := s.doRequest(ctx, http.MethodGet, serverEndpoint+"/settings", nil)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	var settings progress.Settings
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&settings))
	return settings
}

// getRemoteDocument reads a document straight from the account service,
// found is false while the outbox has not delivered it yet.
func (s *IntegrationTestSuite) getRemoteDocument(ctx context.Context, doc string, dst any) bool {
	resp := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("%s/users/%s/%s", accountServerEndpoint, s.userID, doc), nil)
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return false
	}
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(dst))
	return true
}

func firstWeekTotal(settings progress.Settings, calories bool) float64 {
	if len(settings.Progress) == 0 {
		return 0
	}
	if calories {
		return progress.Total(settings.Progress[0].Calories)
	}
	return progress.Total(settings.Progress[0].Minutes)
}

func (s *IntegrationTestSuite) TestFinishWorkout_SyncedToAccountService() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	_, status := s.completeWorkoutRequest(ctx, "unknown-workout")
	assert.Equal(s.T(), http.StatusNotFound, status)

	card, status := s.completeWorkoutRequest(ctx, "w1")
	require.Equal(s.T(), http.StatusOK, status)
	assert.Equal(s.T(), "w1", card.ID)
	assert.True(s.T(), card.Completed)
	assert.Equal(s.T(), "Morning yoga", card.Data.Title)

	resp := s.doRequest(ctx, http.MethodGet, serverEndpoint+"/cards/w1", nil)
	var storedCard progress.Card
	require.NoError(s.T(), json.NewDecoder(resp.Body).Decode(&storedCard))
	resp.Body.Close()
	assert.True(s.T(), storedCard.Completed)

	var program progress.Program
	require.Eventually(s.T(), func() bool {
		program = nil
		return s.getRemoteDocument(ctx, "program", &program)
	}, 10*time.Second, 100*time.Millisecond)

	require.Len(s.T(), program, 2)
	assert.True(s.T(), program[0][0].Completed)
	assert.False(s.T(), program[0][1].Completed)
	assert.False(s.T(), program[1][0].Completed)
	// every entry of the workout is marked, across all weeks
	assert.True(s.T(), program[1][1].Completed)
	assert.JSONEq(s.T(), `1`, string(program[0][0].Extra["order"]))
}

func (s *IntegrationTestSuite) TestRecordStatistics_LedgerSyncedToAccountService() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	before := s.getLocalSettings(ctx)

	s.recordStatisticsRequest(ctx, progress.StatData{Time: 30, Calories: 200})
	s.recordStatisticsRequest(ctx, progress.StatData{Time: 15, Calories: 150})

	local := s.getLocalSettings(ctx)
	assert.Equal(s.T(), before.CompletedWorkouts+2, local.CompletedWorkouts)
	assert.Equal(s.T(), before.CaloriesBurned+350, local.CaloriesBurned)
	assert.Equal(s.T(), before.WeekProgress.Minutes+45, local.WeekProgress.Minutes)
	require.NotEmpty(s.T(), local.Progress)
	assert.JSONEq(s.T(), `"lose weight"`, string(local.Extra["goal"]))

	date := testNow.Format("2006-01-02")
	week := local.Progress[0]
	require.Len(s.T(), week.Minutes, 1)
	require.Len(s.T(), week.Calories, 1)
	// same day, so both sessions merge into one entry per sequence
	assert.Equal(s.T(), firstWeekTotal(before, false)+45, week.Minutes[0][date])
	assert.Equal(s.T(), firstWeekTotal(before, true)+350, week.Calories[0][date])

	var remote progress.Settings
	require.Eventually(s.T(), func() bool {
		remote = progress.Settings{}
		if !s.getRemoteDocument(ctx, "settings", &remote) {
			return false
		}
		return remote.CompletedWorkouts == local.CompletedWorkouts
	}, 10*time.Second, 100*time.Millisecond)

	assert.Equal(s.T(), local.CaloriesBurned, remote.CaloriesBurned)
	assert.Equal(s.T(), local.Progress, remote.Progress)
	assert.JSONEq(s.T(), `30`, string(remote.Extra["workoutLength"]))
}

func (s *IntegrationTestSuite) TestRecordStatistics_BadRequest() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverEndpoint+"/statistics", bytes.NewReader([]byte(`{"time":`)))
	require.NoError(s.T(), err)
	req.Header.Set("User-Agent", testUserAgent)

	resp, err := s.httpClient.Do(req)
	require.NoError(s.T(), err)
	defer resp.Body.Close()
	assert.Equal(s.T(), http.StatusBadRequest, resp.StatusCode)
}

func (s *IntegrationTestSuite) TestMetricsExposed() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	resp := s.doRequest(ctx, http.MethodGet, fmt.Sprintf("http://%s:%d/metrics", serverHost, metricsPort), nil)
	defer resp.Body.Close()
	require.Equal(s.T(), http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(s.T(), err)
	assert.Contains(s.T(), string(body), "workoutsync_sync_life_signal")
}
