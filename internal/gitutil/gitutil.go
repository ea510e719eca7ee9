// Package gitutil wraps the small set of git subprocess invocations used
// by source staging and external-codebase management: clone, checkout,
// remote/HEAD queries, ls-remote-backed ref resolution, and raw-content
// URL synthesis. Every operation shells out through runx — this package
// never links a git library, mirroring the reference implementation's
// reliance on the `git` binary alone.
package gitutil

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/CWorthy-ocean/C-Star-sub001/internal/cstarerrors"
	"github.com/CWorthy-ocean/C-Star-sub001/internal/runx"
)

var hexRef = regexp.MustCompile(`^[0-9a-f]{7}$|^[0-9a-f]{40}$`)

// Clone runs `git clone <repoURL> <localPath>`.
func Clone(ctx context.Context, repoURL, localPath string) error {
	_, err := runx.Run(ctx, fmt.Sprintf("git clone %s %s", shellQuote(repoURL), shellQuote(localPath)), runx.Options{
		MsgErr:       "git clone failed",
		RaiseOnError: true,
	})
	return err
}

// Checkout runs `git -C <localPath> checkout <target>`.
func Checkout(ctx context.Context, localPath, target string) error {
	_, err := runx.Run(ctx, fmt.Sprintf("git -C %s checkout %s", shellQuote(localPath), shellQuote(target)), runx.Options{
		MsgErr:       "git checkout failed",
		RaiseOnError: true,
	})
	return err
}

// CloneAndCheckout clones repoURL into localPath, then (if target is
// non-empty) checks it out.
func CloneAndCheckout(ctx context.Context, repoURL, localPath, target string) error {
	if err := Clone(ctx, repoURL, localPath); err != nil {
		return err
	}
	if target == "" {
		return nil
	}
	return Checkout(ctx, localPath, target)
}

// GetRepoRemote returns the `origin` remote URL of the repo at path.
func GetRepoRemote(ctx context.Context, path string) (string, error) {
	res, err := runx.Run(ctx, fmt.Sprintf("git -C %s remote get-url origin", shellQuote(path)), runx.Options{
		MsgErr:       "failed to read origin remote",
		RaiseOnError: true,
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// GetRepoHeadHash returns the HEAD commit hash of the repo at path.
func GetRepoHeadHash(ctx context.Context, path string) (string, error) {
	res, err := runx.Run(ctx, fmt.Sprintf("git -C %s rev-parse HEAD", shellQuote(path)), runx.Options{
		MsgErr:       "failed to read HEAD",
		RaiseOnError: true,
	})
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// IsDirty reports whether `git -C path status --porcelain` produced any
// output at all (a non-empty result means the working tree is dirty).
func IsDirty(ctx context.Context, path string) (bool, error) {
	res, err := runx.Run(ctx, fmt.Sprintf("git -C %s status --porcelain", shellQuote(path)), runx.Options{
		MsgErr:       "git status failed",
		RaiseOnError: true,
	})
	if err != nil {
		return false, err
	}
	return res.Stdout != "", nil
}

// ResetHard runs `git -C path reset --hard <target>`.
func ResetHard(ctx context.Context, path, target string) error {
	_, err := runx.Run(ctx, fmt.Sprintf("git -C %s reset --hard %s", shellQuote(path), shellQuote(target)), runx.Options{
		MsgErr:       "git reset --hard failed",
		RaiseOnError: true,
	})
	return err
}

// LsRemote runs `git ls-remote <url>` and parses each `<hash>\t<ref>`
// line into a ref -> hash map.
func LsRemote(ctx context.Context, repoURL string) (map[string]string, error) {
	res, err := runx.Run(ctx, fmt.Sprintf("git ls-remote %s", shellQuote(repoURL)), runx.Options{
		MsgErr:       "git ls-remote failed",
		RaiseOnError: true,
	})
	if err != nil {
		return nil, err
	}

	refs := map[string]string{}
	for _, line := range strings.Split(res.Stdout, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		parts := strings.SplitN(line, "\t", 2)
		if len(parts) != 2 {
			continue
		}
		refs[parts[1]] = parts[0]
	}
	return refs, nil
}

// IsRepository reports whether location describes a reachable git
// repository, per `git ls-remote` succeeding.
func IsRepository(ctx context.Context, location string) bool {
	_, err := runx.Run(ctx, fmt.Sprintf("git ls-remote %s", shellQuote(location)), runx.Options{
		RaiseOnError: true,
	})
	return err == nil
}

// CheckoutTargetResult is the outcome of resolving a checkout target
// against a repository's remote refs.
type CheckoutTargetResult struct {
	Hash    string
	Warning string // non-empty when the hash was accepted without remote verification
}

// GetHashFromCheckoutTarget resolves target against repoURL's remote
// refs in the order: (1) a value already present among the ref hashes;
// (2) refs/heads/<target>; (3) refs/tags/<target>; (4) a bare 7- or
// 40-character lowercase hex string, accepted with a warning since
// remote existence cannot otherwise be verified. If none apply, fails
// enumerating the available branches and tags.
func GetHashFromCheckoutTarget(ctx context.Context, repoURL, target string) (CheckoutTargetResult, error) {
	refs, err := LsRemote(ctx, repoURL)
	if err != nil {
		return CheckoutTargetResult{}, err
	}

	for _, hash := range refs {
		if hash == target {
			return CheckoutTargetResult{Hash: target}, nil
		}
	}

	if hash, ok := refs["refs/heads/"+target]; ok {
		return CheckoutTargetResult{Hash: hash}, nil
	}
	if hash, ok := refs["refs/tags/"+target]; ok {
		return CheckoutTargetResult{Hash: hash}, nil
	}

	if hexRef.MatchString(target) {
		return CheckoutTargetResult{
			Hash:    target,
			Warning: fmt.Sprintf("%q looks like a commit hash; its presence on the remote could not be verified", target),
		}, nil
	}

	var branches, tags []string
	for ref := range refs {
		switch {
		case strings.HasPrefix(ref, "refs/heads/"):
			branches = append(branches, strings.TrimPrefix(ref, "refs/heads/"))
		case strings.HasPrefix(ref, "refs/tags/"):
			tags = append(tags, strings.TrimPrefix(ref, "refs/tags/"))
		}
	}
	return CheckoutTargetResult{}, cstarerrors.NotFound("gitutil.GetHashFromCheckoutTarget",
		fmt.Sprintf("%q is not a branch, tag, or hash of %s; available branches: %v; tags: %v", target, repoURL, branches, tags))
}

// GitLocationToRaw synthesises a raw-content URL for a file at subdir/
// filename, checked out at target, in the GitHub/GitLab/Bitbucket
// repository identified by repoURL. Fails on an unrecognised host or a
// non-HTTP URL.
func GitLocationToRaw(repoURL, target, filename, subdir string) (string, error) {
	u, err := url.Parse(repoURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return "", cstarerrors.Validation("gitutil.GitLocationToRaw", fmt.Sprintf("%q is not an HTTP(S) repository URL", repoURL))
	}

	path := strings.TrimSuffix(strings.TrimPrefix(u.Path, "/"), ".git")
	filePath := filename
	if subdir != "" {
		filePath = strings.TrimSuffix(subdir, "/") + "/" + filename
	}

	switch u.Host {
	case "github.com":
		return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s", path, target, filePath), nil
	case "gitlab.com":
		return fmt.Sprintf("https://gitlab.com/%s/-/raw/%s/%s", path, target, filePath), nil
	case "bitbucket.org":
		return fmt.Sprintf("https://bitbucket.org/%s/raw/%s/%s", path, target, filePath), nil
	default:
		return "", cstarerrors.Validation("gitutil.GitLocationToRaw", fmt.Sprintf("unrecognised git hosting provider %q", u.Host))
	}
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
