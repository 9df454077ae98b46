package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	internalcrypto "github.com/vault-cli/ciphora/internal/crypto"
	"github.com/vault-cli/ciphora/internal/domain"
)

type passgenOptions struct {
	length  int
	charset string
	count   int
	copy    bool
	ttl     int
}

func newPassgenCommand(a *app) *cobra.Command {
	opts := &passgenOptions{count: 1, ttl: -1}

	cmd := &cobra.Command{
		Use:   "passgen",
		Short: "Generate secure passwords",
		Long: `Generate secure passwords. Without --charset the generator section of
the config selects the characters (classes, look-alike exclusion or a
custom charset).

Example:
  ciphora passgen
  ciphora passgen --length 32 --charset alnum
  ciphora passgen --copy --ttl 10`,
		Args: cobra.NoArgs,
		RunE: a.run(func(cmd *cobra.Command, args []string) error {
			return a.runPassgen(cmd, opts)
		}),
	}

	cmd.Flags().IntVar(&opts.length, "length", 0, "length of generated password (default from config)")
	cmd.Flags().StringVar(&opts.charset, "charset", "", "character set (alpha|alnum|alnumsym)")
	cmd.Flags().IntVarP(&opts.count, "count", "n", opts.count, "number of passwords")
	cmd.Flags().BoolVar(&opts.copy, "copy", false, "copy the generated value to the clipboard")
	cmd.Flags().IntVar(&opts.ttl, "ttl", opts.ttl, "clipboard clear timeout in seconds (-1 to use config default)")

	return cmd
}

func (a *app) runPassgen(cmd *cobra.Command, opts *passgenOptions) error {
	gen := a.cfg.GeneratorOptions()
	if cmd.Flags().Changed("length") {
		if opts.length <= 0 {
			return fmt.Errorf("%w: --length must be positive", domain.ErrValidation)
		}
		gen.Length = opts.length
	}
	if opts.count <= 0 {
		return fmt.Errorf("%w: --count must be positive", domain.ErrValidation)
	}
	if opts.copy && opts.count > 1 {
		return fmt.Errorf("%w: --copy takes a single password", domain.ErrValidation)
	}

	var charset internalcrypto.Charset
	if opts.charset != "" {
		charset = internalcrypto.Charset(strings.ToLower(opts.charset))
		switch charset {
		case internalcrypto.CharsetAlpha, internalcrypto.CharsetAlnum, internalcrypto.CharsetAlnumSym:
		default:
			return fmt.Errorf("%w: invalid charset: %s (valid: alpha, alnum, alnumsym)", domain.ErrValidation, opts.charset)
		}
	}

	passwords := make([]string, opts.count)
	for i := range passwords {
		var err error
		if charset != "" {
			passwords[i], err = internalcrypto.GeneratePassword(gen.Length, charset)
		} else {
			passwords[i], err = internalcrypto.Generate(gen)
		}
		if err != nil {
			return fmt.Errorf("failed to generate password: %w", err)
		}
	}

	if !opts.copy {
		for _, p := range passwords {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	}

	ttl := a.cfg.ClipboardTTL
	if opts.ttl >= 0 {
		ttl = time.Duration(opts.ttl) * time.Second
	}
	return a.copyToClipboard(cmd, passwords[0], "Password", ttl)
}
