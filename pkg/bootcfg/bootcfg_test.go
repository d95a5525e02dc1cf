package bootcfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDiscoverLabel(t *testing.T) {
	label, _, err := Discover([]string{"search --label --set=root 'Lab_Vol_1'"})
	require.NoError(t, err)
	assert.Equal(t, "Lab_Vol_1", label)
}

func TestDiscoverLastSearchLineWins(t *testing.T) {
	label, _, err := Discover([]string{
		"search --label --set=root 'First'",
		"linuxefi /images/pxeboot/vmlinuz quiet",
		`search --no-floppy --set=root -l "Second"`,
	})
	require.NoError(t, err)
	assert.Equal(t, "Second", label)
}

func TestDiscoverWithoutSearchLine(t *testing.T) {
	_, injectable, err := Discover([]string{"linuxefi /images/pxeboot/vmlinuz quiet"})
	require.ErrorIs(t, err, ErrLabelNotFound)
	assert.True(t, injectable)
}

func TestRewriteLoaderLine(t *testing.T) {
	result, err := Rewrite([]string{
		"search --label --set=root 'Lab_Vol_1'",
		"linuxefi /images/pxeboot/vmlinuz quiet",
	})
	require.NoError(t, err)

	assert.Equal(t, "linuxefi /images/pxeboot/vmlinuz quiet inst.ks=hd:LABEL=Lab_Vol_1:/ks.cfg", result.Lines[1])
	assert.Equal(t, "Lab_Vol_1", result.Label)
	assert.Equal(t, 1, result.InjectedLine)
}

func TestRewriteWithoutQuietAppends(t *testing.T) {
	result, err := Rewrite([]string{
		"search --label --set=root 'Lab_Vol_1'",
		"linuxefi /images/pxeboot/vmlinuz inst.stage2=hd:LABEL=Lab_Vol_1   ",
	})
	require.NoError(t, err)

	assert.Equal(t, "linuxefi /images/pxeboot/vmlinuz inst.stage2=hd:LABEL=Lab_Vol_1 inst.ks=hd:LABEL=Lab_Vol_1:/ks.cfg", result.Lines[1])
}

func TestRewriteInjectsExactlyOnce(t *testing.T) {
	lines := []string{
		"search --label --set=root 'Lab_Vol_1'",
		"linuxefi /images/pxeboot/vmlinuz quiet",
		"linuxefi /images/pxeboot/vmlinuz quiet",
		"linuxefi /images/pxeboot/vmlinuz nomodeset quiet",
	}

	result, err := Rewrite(lines)
	require.NoError(t, err)

	count := 0
	for _, line := range result.Lines {
		count += strings.Count(line, "inst.ks=")
	}
	assert.Equal(t, 1, count)
	assert.Equal(t, lines[2], result.Lines[2])
	assert.Equal(t, lines[3], result.Lines[3])
}

func TestRewriteSkipsExcludedEntries(t *testing.T) {
	lines := []string{
		"search --label --set=root 'Lab_Vol_1'",
		"linuxefi /images/pxeboot/vmlinuz rd.live.check quiet",
		"linuxefi /images/pxeboot/vmlinuz inst.rescue quiet",
		"linuxefi /images/pxeboot/vmlinuz inst.text quiet",
		"linuxefi /images/pxeboot/vmlinuz quiet",
	}

	result, err := Rewrite(lines)
	require.NoError(t, err)

	assert.Equal(t, lines[1], result.Lines[1])
	assert.Equal(t, lines[2], result.Lines[2])
	assert.Equal(t, lines[3], result.Lines[3])
	assert.Contains(t, result.Lines[4], Directive("Lab_Vol_1"))
	assert.Equal(t, 4, result.InjectedLine)
}

func TestRewriteDefaultAndTimeoutAreNotLatched(t *testing.T) {
	result, err := Rewrite([]string{
		`set default="1"`,
		"set timeout=60",
		"search --label --set=root 'Lab_Vol_1'",
		"linuxefi /images/pxeboot/vmlinuz quiet",
		"set default=2",
		`  set timeout="60"`,
		"set timeout_style=menu",
	})
	require.NoError(t, err)

	assert.Equal(t, `set default="0"`, result.Lines[0])
	assert.Equal(t, "set timeout=5", result.Lines[1])
	assert.Equal(t, "set default=0", result.Lines[4])
	assert.Equal(t, `  set timeout="5"`, result.Lines[5])
	assert.Equal(t, "set timeout_style=menu", result.Lines[6])
}

func TestRewriteLeavesOtherLinesUntouched(t *testing.T) {
	lines := []string{
		"search --label --set=root 'Lab_Vol_1'",
		"insmod gzio",
		"\tinitrdefi /images/pxeboot/initrd.img",
		"linuxefi /images/pxeboot/vmlinuz quiet",
		"}",
	}

	result, err := Rewrite(lines)
	require.NoError(t, err)

	for _, i := range []int{0, 1, 2, 4} {
		assert.Equal(t, lines[i], result.Lines[i])
	}
}

func TestRewriteErrors(t *testing.T) {
	tests := []struct {
		name  string
		lines []string
		want  error
	}{
		{
			name:  "no search line",
			lines: []string{"linuxefi /images/pxeboot/vmlinuz quiet"},
			want:  ErrLabelNotFound,
		},
		{
			name:  "only excluded loader lines",
			lines: []string{"search -l 'L'", "linuxefi /vmlinuz inst.rescue quiet"},
			want:  ErrNoLoaderEntry,
		},
		{
			name:  "already rewritten",
			lines: []string{"search -l 'L'", "linuxefi /vmlinuz quiet inst.ks=hd:LABEL=L:/ks.cfg"},
			want:  ErrAlreadyRewritten,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Rewrite(tt.lines)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRewriteAlreadyRewrittenKeepsLabel(t *testing.T) {
	result, err := Rewrite([]string{
		"search --no-floppy --set=root -l 'OL-9-4-0-BaseOS-x86_64'",
		"linuxefi /images/pxeboot/vmlinuz quiet inst.ks=hd:LABEL=OL-9-4-0-BaseOS-x86_64:/ks.cfg",
	})
	require.ErrorIs(t, err, ErrAlreadyRewritten)
	assert.Equal(t, "OL-9-4-0-BaseOS-x86_64", result.Label)
	assert.Nil(t, result.Lines)
}

func TestRewriteDoesNotMutateInput(t *testing.T) {
	lines := []string{"search -l 'L'", "linuxefi /vmlinuz quiet", "set timeout=60"}
	orig := append([]string(nil), lines...)

	_, err := Rewrite(lines)
	require.NoError(t, err)
	assert.Equal(t, orig, lines)
}

func TestInjectorStates(t *testing.T) {
	inj := NewInjector("L")
	assert.Equal(t, NotInjected, inj.State())

	line, ok := inj.Apply("insmod gzio")
	assert.False(t, ok)
	assert.Equal(t, "insmod gzio", line)
	assert.Equal(t, NotInjected, inj.State())

	line, ok = inj.Apply("linuxefi /vmlinuz rd.live.check quiet")
	assert.False(t, ok)
	assert.Equal(t, NotInjected, inj.State())

	line, ok = inj.Apply("linuxefi /vmlinuz quiet")
	assert.True(t, ok)
	assert.Equal(t, "linuxefi /vmlinuz quiet inst.ks=hd:LABEL=L:/ks.cfg", line)
	assert.Equal(t, Injected, inj.State())

	line, ok = inj.Apply("linuxefi /vmlinuz quiet")
	assert.False(t, ok)
	assert.Equal(t, "linuxefi /vmlinuz quiet", line)
	assert.Equal(t, "injected", inj.State().String())
}

func TestTokenEnd(t *testing.T) {
	assert.Equal(t, 5, tokenEnd("quiet", "quiet"))
	assert.Equal(t, 15, tokenEnd("a noquiet quiet x", "quiet"))
	assert.Equal(t, -1, tokenEnd("a quietly", "quiet"))
}

func TestRewriteFile(t *testing.T) {
	src, err := os.ReadFile(filepath.Join("testdata", "grub.cfg"))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "grub.cfg")
	crlf := strings.ReplaceAll(string(src), "\n", "\r\n")
	require.NoError(t, os.WriteFile(path, []byte(crlf), 0o444))

	result, err := RewriteFile(path)
	require.NoError(t, err)
	assert.Equal(t, "OL-9-2-0-BaseOS-x86_64", result.Label)

	out, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(out)

	assert.NotContains(t, text, "\r")
	assert.Equal(t, 1, strings.Count(text, "inst.ks="))
	assert.Contains(t, text, "inst.stage2=hd:LABEL=OL-9-2-0-BaseOS-x86_64 quiet inst.ks=hd:LABEL=OL-9-2-0-BaseOS-x86_64:/ks.cfg\n")
	assert.Contains(t, text, "set default=\"0\"\n")
	assert.Contains(t, text, "set timeout=5\n")
	assert.Contains(t, text, "inst.text quiet\n")
	assert.Contains(t, text, "rd.live.check quiet\n")

	_, err = RewriteFile(path)
	assert.ErrorIs(t, err, ErrAlreadyRewritten)
}

func TestReadFileMissing(t *testing.T) {
	_, err := ReadFile(filepath.Join(t.TempDir(), "missing.cfg"))
	assert.Error(t, err)
}
