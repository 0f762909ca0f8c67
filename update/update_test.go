package update_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/TrueBrain/game-coordinator/update"
	"github.com/google/go-github/github"
	"github.com/stretchr/testify/require"
)

func TestCheckForNewerVersion(t *testing.T) {
	tests := []struct {
		name           string
		latestVersion  string
		currentVersion string
		expectedNewer  bool
		expectedError  error
	}{
		{
			name:           "Newer version available",
			latestVersion:  "v1.1.0",
			currentVersion: "v1.0.0",
			expectedNewer:  true,
		},
		{
			name:           "No newer version",
			latestVersion:  "v1.0.0",
			currentVersion: "v1.0.0",
			expectedNewer:  false,
		},
		{
			name:           "Invalid current version",
			latestVersion:  "v1.1.0",
			currentVersion: "invalid-version",
			expectedError:  update.ErrParsingCurrentVersion,
		},
		{
			name:           "Invalid latest version",
			latestVersion:  "invalid-version",
			currentVersion: "v1.0.0",
			expectedError:  update.ErrParsingLatestVersion,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				fmt.Fprintf(w, `{"tag_name": "%s"}`, tt.latestVersion)
			}))
			defer ts.Close()

			client := github.NewClient(nil)
			newBaseURL, err := client.BaseURL.Parse(ts.URL + "/")
			require.NoError(t, err, "failed to parse base URL")
			client.BaseURL = newBaseURL

			newer, version, err := update.CheckForNewerVersion(client, tt.currentVersion)

			if tt.expectedError != nil {
				require.Error(t, err)
				require.ErrorIs(t, err, tt.expectedError)
				return
			}

			require.NoError(t, err)
			require.Equal(t, tt.expectedNewer, newer)
			require.Equal(t, tt.latestVersion, version)
		})
	}
}

func TestGetLatestReleaseVersion(t *testing.T) {
	t.Run("valid latest release", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, `{"tag_name": "v2.0.0"}`)
		}))
		defer ts.Close()

		client := github.NewClient(nil)
		newBaseURL, err := client.BaseURL.Parse(ts.URL + "/")
		require.NoError(t, err)
		client.BaseURL = newBaseURL

		result, err := update.GetLatestReleaseVersion(client, "TrueBrain", "game-coordinator")
		require.NoError(t, err)
		require.Equal(t, "v2.0.0", result)
	})

	t.Run("error fetching latest release", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "error", http.StatusInternalServerError)
		}))
		defer ts.Close()

		client := github.NewClient(nil)
		newBaseURL, err := client.BaseURL.Parse(ts.URL + "/")
		require.NoError(t, err)
		client.BaseURL = newBaseURL

		_, err = update.GetLatestReleaseVersion(client, "TrueBrain", "game-coordinator")
		require.Error(t, err)
		require.ErrorIs(t, err, update.ErrFetchingLatestRelease)
	})
}
