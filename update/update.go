// Package update performs the daemon's best-effort startup check against
// the upstream GitHub releases feed.
package update

import (
	"context"
	"errors"
	"fmt"

	"github.com/blang/semver"
	"github.com/google/go-github/github"
)

const upstreamOwner = "TrueBrain"
const upstreamRepo = "game-coordinator"

var ErrParsingCurrentVersion = errors.New("error parsing current version")
var ErrParsingLatestVersion = errors.New("error parsing latest version")
var ErrFetchingLatestRelease = errors.New("error fetching latest release")

// CheckForNewerVersion reports whether a release newer than currentVersion
// is published upstream. currentVersion is parsed leniently (ParseTolerant)
// since build-injected version strings commonly carry a leading "v" or a
// short git describe suffix.
func CheckForNewerVersion(client *github.Client, currentVersion string) (bool, string, error) {
	latestVersion, err := GetLatestReleaseVersion(client, upstreamOwner, upstreamRepo)
	if err != nil {
		return false, "", err
	}

	currentSemver, err := semver.ParseTolerant(currentVersion)
	if err != nil {
		return false, "", fmt.Errorf("%w: %w", ErrParsingCurrentVersion, err)
	}

	latestSemver, err := semver.ParseTolerant(latestVersion)
	if err != nil {
		return false, "", fmt.Errorf("%w: %w", ErrParsingLatestVersion, err)
	}

	if latestSemver.GT(currentSemver) {
		return true, latestVersion, nil
	}

	return false, latestVersion, nil
}

// GetLatestReleaseVersion fetches the tag name of the latest published
// release of owner/repo.
func GetLatestReleaseVersion(client *github.Client, owner, repo string) (string, error) {
	latestRelease, _, err := client.Repositories.GetLatestRelease(context.Background(), owner, repo)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrFetchingLatestRelease, err)
	}
	return latestRelease.GetTagName(), nil
}
