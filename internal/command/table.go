// ABOUTME: The fixed command table: each key maps to an immutable argv prefix
// ABOUTME: Keys are classified as git, git-write, or system (no working directory)

package command

import (
	"slices"
	"sort"
)

// Key names a whitelisted command.
type Key string

const (
	Pwd            Key = "pwd"
	Ls             Key = "ls"
	Whoami         Key = "whoami"
	Date           Key = "date"
	DockerPs       Key = "docker_ps"
	DockerLogsTail Key = "docker_logs_tail"
	SystemctlStat  Key = "systemctl_status"
	JournalctlTail Key = "journalctl_tail"
	GitStatus      Key = "git_status"
	GitDiff        Key = "git_diff"
	GitDiffStaged  Key = "git_diff_staged"
	GitAdd         Key = "git_add"
	GitCommit      Key = "git_commit"
	GitPush        Key = "git_push"
)

type class int

const (
	classLocal  class = iota // runs in the working directory when one is set
	classSystem              // never gets a working directory
	classGit                 // working directory is required
)

func (c class) String() string {
	switch c {
	case classSystem:
		return "system"
	case classGit:
		return "git"
	default:
		return "local"
	}
}

type entry struct {
	argv  []string
	class class
	write bool
	usage string
}

var table = map[Key]entry{
	Pwd:            {argv: []string{"pwd"}},
	Ls:             {argv: []string{"ls", "-la"}},
	Whoami:         {argv: []string{"whoami"}},
	Date:           {argv: []string{"date"}},
	DockerPs:       {argv: []string{"docker", "ps"}, class: classSystem},
	DockerLogsTail: {argv: []string{"docker", "logs", "--tail"}, class: classSystem, usage: "[lines, container]"},
	SystemctlStat:  {argv: []string{"systemctl", "status"}, class: classSystem, usage: "[service]"},
	JournalctlTail: {argv: []string{"journalctl", "-n"}, class: classSystem, usage: "[lines, service]"},
	GitStatus:      {argv: []string{"git", "status", "--porcelain"}, class: classGit},
	GitDiff:        {argv: []string{"git", "diff"}, class: classGit},
	GitDiffStaged:  {argv: []string{"git", "diff", "--staged"}, class: classGit},
	GitAdd:         {argv: []string{"git", "add"}, class: classGit, write: true, usage: "[workdir?, path='.']"},
	GitCommit:      {argv: []string{"git", "commit", "-m"}, class: classGit, write: true, usage: "[workdir?, message] or [workdir?, -m, message]"},
	GitPush:        {argv: []string{"git", "push"}, class: classGit, write: true, usage: "[workdir?, remote='origin', branch='main']"},
}

// Info describes one table entry for listings.
type Info struct {
	Key   Key      `json:"key"`
	Argv  []string `json:"argv"`
	Usage string   `json:"usage,omitempty"`
	Class string   `json:"class"` // local, system, or git
	Write bool     `json:"write,omitempty"`
}

// Table returns every whitelisted command sorted by key.
func Table() []Info {
	out := make([]Info, 0, len(table))
	for k, e := range table {
		out = append(out, Info{Key: k, Argv: slices.Clone(e.argv), Usage: e.usage, Class: e.class.String(), Write: e.write})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// IsGitWrite reports whether key mutates the git index or a remote.
func IsGitWrite(key string) bool {
	e, ok := table[Key(key)]
	return ok && e.write
}
