package tokens

import (
	"fmt"
	"strings"

	ethcommon "github.com/ethereum/go-ethereum/common"
)

// Standard is the token standard part of a token slug.
type Standard string

const (
	StandardNative Standard = "native"
	StandardERC20  Standard = "erc20"
	StandardERC721 Standard = "erc721"
)

// NativeSlug identifies the chain's native currency.
const NativeSlug string = "native"

// NewSlug builds the canonical slug for a contract token.
func NewSlug(standard Standard, address string) string {
	return fmt.Sprintf("%s_%s", standard, strings.ToLower(address))
}

// ParseSlug splits a slug into its standard and contract address. The native
// slug carries no address.
func ParseSlug(slug string) (Standard, string, error) {
	if slug == NativeSlug {
		return StandardNative, "", nil
	}
	parts := strings.SplitN(slug, "_", 2)
	if len(parts) != 2 {
		return "", "", fmt.Errorf("malformed token slug %q", slug)
	}
	standard := Standard(parts[0])
	switch standard {
	case StandardERC20, StandardERC721:
	default:
		return "", "", fmt.Errorf("unknown token standard %q in slug %q", parts[0], slug)
	}
	if !ethcommon.IsHexAddress(parts[1]) {
		return "", "", fmt.Errorf("malformed token address in slug %q", slug)
	}
	return standard, ethcommon.HexToAddress(parts[1]).Hex(), nil
}

// AccountTokenKey is both the repository key and the in-flight dedup marker
// for one (chain, account, token) tuple.
func AccountTokenKey(chainID int64, accountAddress, tokenSlug string) string {
	return fmt.Sprintf(
		"%d_%s_%s",
		chainID,
		strings.ToLower(accountAddress),
		tokenSlug,
	)
}
