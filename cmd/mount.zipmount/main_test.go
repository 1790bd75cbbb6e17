package main

import (
	"bytes"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// Expectation: The expected command should be built from the given arguments.
//
//nolint:maintidx
func Test_MountHelper_BuildCommand_Success(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		args    []string
		want    []string
		wantErr bool
	}{
		{
			name: "basic mount no options",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b"},
		},
		{
			name: "bare flag option",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "allow-other"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--allow-other"},
		},
		{
			name: "key=value option",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "webserver=:8000"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--webserver", ":8000"},
		},
		{
			name: "mixed bare flag and key=value",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "allow-other,cache=contents"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--allow-other", "--cache", "contents"},
		},
		{
			name: "options with prefix and dashes",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "--allow-other,--verbose,--cache-ttl=1h"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--allow-other", "--cache-ttl", "1h", "--verbose"},
		},
		{
			name: "from basename mount.fuse.zipmount",
			args: []string{"mount.fuse.zipmount", "/srv/a.zip", "/mnt/b"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b"},
		},
		{
			name: "derived from source# syntax",
			args: []string{"mount.fuseblk.", "zipmount#/srv/a.zip", "/mnt/b"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b"},
		},
		{
			name: "source#type with multiple hashes uses first",
			args: []string{"mount.fuse.", "zipmount#/srv/a#b.zip", "/mnt/b"},
			want: []string{"zipmount", "/srv/a#b.zip", "/mnt/b"},
		},
		{
			name: "explicit -t fuse.zipmount",
			args: []string{"mount", "/srv/a.zip", "/mnt/b", "-t", "fuse.zipmount"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b"},
		},
		{
			name: "explicit -t overrides basename",
			args: []string{"mount.fuse.zipmount", "/srv/a.zip", "/mnt/b", "-t", "other"},
			want: []string{"other", "/srv/a.zip", "/mnt/b"},
		},
		{
			name: "multiple -o flags merged",
			args: []string{
				"mount.zipmount", "/srv/a.zip", "/mnt/b",
				"-o", "allow-other", "-o", "webserver=:7000",
			},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--allow-other", "--webserver", ":7000"},
		},
		{
			name: "ignore -v flag",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "-v", "-v", "utc"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--utc"},
		},
		{
			name: "underscores converted to dashes",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "strict_duplicates,cache_limit=1GiB,must_crc32"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--cache-limit", "1GiB", "--must-crc32", "--strict-duplicates"},
		},
		{
			name: "ring_buffer_size option",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "ring_buffer_size=8192"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--ring-buffer-size", "8192"},
		},
		{
			name: "option value with space",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "cache-limit=128 MiB"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--cache-limit", "128 MiB"},
		},
		{
			name: "source and mountpoint with spaces",
			args: []string{"mount.zipmount", "/srv/with space.zip", "/mnt/with space"},
			want: []string{"zipmount", "/srv/with space.zip", "/mnt/with space"},
		},
		{
			name: "empty option string ignored",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "allow-other,,verbose"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--allow-other", "--verbose"},
		},
		{
			name: "unknown and dry-run options ignored",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "unknown-option,dry-run,allow-other,ro,nodev"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--allow-other"},
		},
		{
			name: "helper options not passed on",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "-o", "setuid=nobody,xlog=/tmp/z.log,xtim=5,utc"},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--utc"},
		},
		{
			name: "empty value in key= option",
			args: []string{"mount.zipmount", "/srv/a.zip", "/mnt/b", "webserver="},
			want: []string{"zipmount", "/srv/a.zip", "/mnt/b", "--webserver"},
		},
		{
			name: "explicit binary path",
			args: []string{"mount.zipmount", "./a.zip", "./dest", "-o", "xbin=/opt/bin/zipmount"},
			want: []string{"/opt/bin/zipmount", "./a.zip", "./dest"},
		},
		{
			name:    "explicit -t fuse. with empty suffix errors",
			args:    []string{"mount", "/srv/a.zip", "/mnt/b", "-t", "fuse."},
			wantErr: true,
		},
		{
			name:    "missing -t value",
			args:    []string{"mount", "/srv/a.zip", "/mnt/b", "-t"},
			wantErr: true,
		},
		{
			name:    "source with only # gives empty type error",
			args:    []string{"mount.fuseblk.", "#/srv/a.zip", "/mnt/b"},
			wantErr: true,
		},
		{
			name:    "source with only # gives empty source error",
			args:    []string{"mount.fuseblk.", "zipmount#", "/mnt/b"},
			wantErr: true,
		},
		{
			name:    "source without # in generic mount helper",
			args:    []string{"mount.fuseblk.", "nosource", "/mnt/b"},
			wantErr: true,
		},
		{
			name:    "empty source argument",
			args:    []string{"mount.zipmount", "", "/mnt/b"},
			wantErr: true,
		},
		{
			name:    "empty mountpoint argument",
			args:    []string{"mount.zipmount", "/srv/a.zip", ""},
			wantErr: true,
		},
		{
			name:    "missing arguments",
			args:    []string{"mount.zipmount", "/srv/a.zip"},
			wantErr: true,
		},
		{
			name:    "invalid xtim value",
			args:    []string{"mount", "/srv/a.zip", "/mnt/b", "-o", "xtim=0"},
			wantErr: true,
		},
		{
			name:    "non-numeric xtim value",
			args:    []string{"mount", "/srv/a.zip", "/mnt/b", "-o", "xtim=soon"},
			wantErr: true,
		},
		{
			name:    "empty xbin value",
			args:    []string{"mount", "/srv/a.zip", "/mnt/b", "-o", "xbin="},
			wantErr: true,
		},
		{
			name:    "empty xlog value",
			args:    []string{"mount", "/srv/a.zip", "/mnt/b", "-o", "xlog="},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mh, err := newMountHelper(tt.args)
			if (err != nil) != tt.wantErr {
				t.Fatalf("newMountHelper() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			got := mh.BuildCommand()
			if !slices.Equal(got, tt.want) {
				t.Errorf("BuildCommand() = %v\nwant %v", got, tt.want)
			}
		})
	}
}

// Expectation: The helper options should be parsed into the helper itself.
func Test_newMountHelper_HelperOptions_Success(t *testing.T) {
	t.Parallel()

	mh, err := newMountHelper([]string{
		"mount.zipmount", "/srv/a.zip", "/mnt/b",
		"-o", "setuid=1000,xbin=/opt/zipmount,xlog=/tmp/z.log,xtim=5",
	})
	require.NoError(t, err)

	require.Equal(t, "1000", mh.Setuid)
	require.Equal(t, "/opt/zipmount", mh.Binary)
	require.Equal(t, "/tmp/z.log", mh.LogFile)
	require.Equal(t, 5*time.Second, mh.Timeout)
	require.Empty(t, mh.Options)
}

// Expectation: Without helper options the defaults should be used.
func Test_newMountHelper_Defaults_Success(t *testing.T) {
	t.Parallel()

	mh, err := newMountHelper([]string{"mount.zipmount", "/srv/a.zip", "/mnt/b"})
	require.NoError(t, err)

	require.Equal(t, defaultType, mh.Type)
	require.Equal(t, defaultMountLog, mh.LogFile)
	require.Equal(t, defaultMountTimeout, mh.Timeout)
	require.Empty(t, mh.Setuid)
	require.Empty(t, mh.Binary)
}

// Expectation: A numeric user should resolve to itself for both UID and GID.
func Test_resolveUser_Numeric_Success(t *testing.T) {
	t.Parallel()

	uid, gid, err := resolveUser("1234")
	require.NoError(t, err)
	require.Equal(t, uint32(1234), uid)
	require.Equal(t, uint32(1234), gid)
}

// Expectation: An unknown user should not resolve.
func Test_resolveUser_Error(t *testing.T) {
	t.Parallel()

	_, _, err := resolveUser("no-such-user-zipmount")
	require.Error(t, err)
}

// Expectation: Only the mountpoint field of a mountinfo line should match.
func Test_mountinfoContains_Success(t *testing.T) {
	t.Parallel()

	table := strings.Join([]string{
		"22 1 0:21 / /proc rw,nosuid - proc proc rw",
		"97 22 0:48 / /mnt/data ro,nosuid,nodev - fuse.zipmount zipmount ro",
	}, "\n")

	ok, err := mountinfoContains(strings.NewReader(table), "/mnt/data")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = mountinfoContains(strings.NewReader(table), "/mnt")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = mountinfoContains(strings.NewReader(table), "zipmount")
	require.NoError(t, err)
	require.False(t, ok)
}

// Expectation: A readiness byte should end the wait before the timeout.
func Test_MountHelper_waitForMount_Success(t *testing.T) {
	t.Parallel()

	mh := &MountHelper{Mountpoint: "/nonexistent/zipmount", Timeout: 10 * time.Second}

	start := time.Now()
	require.NoError(t, mh.waitForMount(bytes.NewReader([]byte{1})))
	require.Less(t, time.Since(start), 5*time.Second)
}

// Expectation: A closed pipe without a mount should time out.
func Test_MountHelper_waitForMount_Timeout_Error(t *testing.T) {
	t.Parallel()

	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	require.NoError(t, w.Close())

	mh := &MountHelper{Mountpoint: "/nonexistent/zipmount", Timeout: time.Second, LogFile: "/tmp/z.log"}

	err = mh.waitForMount(r)
	require.Error(t, err)
	require.Contains(t, err.Error(), "within 1 seconds")
}
