package catalog

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReasonOf(t *testing.T) {
	testCases := []struct {
		err      error
		expected string
	}{
		{fmt.Errorf("resolve debian: %w", ErrAmbiguousRelease), ReasonAmbiguousRelease},
		{fmt.Errorf("fetch: %w: %w", ErrTransport, context.Canceled), ReasonCancelled},
		{fmt.Errorf("verify: %w", ErrChecksumMismatch), ReasonChecksumMismatch},
		{fmt.Errorf("write: %w", ErrStorage), ReasonStorage},
		{errors.New("boom"), ReasonUnknown},
	}
	for _, testCase := range testCases {
		require.Equal(t, testCase.expected, ReasonOf(testCase.err))
	}
}

func TestUSBIdentityMatches(t *testing.T) {
	id := USBIdentity{DevicePath: "/dev/sdb1", VendorID: "0930", ModelID: "6544"}
	require.True(t, id.Matches(Device{DevicePath: "/dev/sdc1", VendorID: "0930", ModelID: "6544"}))
	require.False(t, id.Matches(Device{DevicePath: "/dev/sdb1", VendorID: "0781", ModelID: "5567"}))
	require.False(t, USBIdentity{}.Matches(Device{}))
}

func TestReport(t *testing.T) {
	r := &Report{Outcomes: []*Outcome{
		{Status: StatusUpToDate},
		{Status: StatusDownloaded},
		{Status: StatusUpToDate},
	}}
	require.False(t, r.HasFailures())
	require.Equal(t, 2, r.Count(StatusUpToDate))

	r.Outcomes = append(r.Outcomes, &Outcome{Status: StatusFailed, Reason: ReasonTransport})
	require.True(t, r.HasFailures())
}

func TestEntryPinnedVersion(t *testing.T) {
	require.Equal(t, "", Entry{Version: LatestVersion}.PinnedVersion())
	require.Equal(t, "", Entry{}.PinnedVersion())
	require.Equal(t, "12.4.0", Entry{Version: "12.4.0"}.PinnedVersion())
}
