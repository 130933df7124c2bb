package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pipescope/internal/exitcode"
	"github.com/felixgeelhaar/pipescope/internal/report"
	"github.com/felixgeelhaar/pipescope/internal/signing"
	"github.com/felixgeelhaar/pipescope/internal/ux"
)

var keygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate an ed25519 key pair for signing reports",
	Long: `Generate an ed25519 key pair. The public key is written to pipescope.pub
and the private key seed to pipescope.key (mode 0600), both hex encoded.`,
	Args: cobra.NoArgs,
	RunE: runKeygen,
}

var signCmd = &cobra.Command{
	Use:   "sign <report.json>",
	Short: "Sign an analysis report",
	Long: `Sign a JSON analysis report. The envelope carries the canonical report, its
BLAKE3 digest, the public key and an ed25519 signature over the digest.

Use --key for a key written by 'pipescope keygen' or --ssh-key for an
unencrypted OpenSSH ed25519 key.`,
	Args: cobra.ExactArgs(1),
	RunE: runSign,
}

var verifyCmd = &cobra.Command{
	Use:   "verify <envelope>",
	Short: "Verify a signed analysis report",
	Long: `Verify a signature envelope written by 'pipescope sign'.

Exits 5 when the signature does not match the report or the key.`,
	Args: cobra.ExactArgs(1),
	RunE: runVerify,
}

var (
	keygenOut  string
	signKey    string
	signSSHKey string
	signOut    string
	verifyPub  string
	verifyShow bool
)

func init() {
	keygenCmd.Flags().StringVarP(&keygenOut, "out", "o", ".", "directory for the key files")

	signCmd.Flags().StringVar(&signKey, "key", "", "hex private key file")
	signCmd.Flags().StringVar(&signSSHKey, "ssh-key", "", "OpenSSH ed25519 private key file")
	signCmd.Flags().StringVarP(&signOut, "out", "o", "", "envelope path (default <report>.sig.json)")
	signCmd.MarkFlagsMutuallyExclusive("key", "ssh-key")
	signCmd.MarkFlagsOneRequired("key", "ssh-key")

	verifyCmd.Flags().StringVar(&verifyPub, "pub", "", "hex public key file")
	verifyCmd.Flags().BoolVar(&verifyShow, "show", false, "print the signed report after a successful check")
	_ = verifyCmd.MarkFlagRequired("pub")

	rootCmd.AddCommand(keygenCmd)
	rootCmd.AddCommand(signCmd)
	rootCmd.AddCommand(verifyCmd)
}

func runKeygen(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	pub, priv, err := signing.GenerateKeyPair()
	if err != nil {
		return err
	}
	pubPath, privPath, err := signing.SaveKeyPair(keygenOut, pub, priv)
	if err != nil {
		return err
	}
	cmdCtx.Logger.Info("key pair generated", "public", pubPath)

	cmdCtx.Infof(cmd, "✓ Public key:  %s", pubPath)
	cmdCtx.Infof(cmd, "✓ Private key: %s (keep this secret)", privPath)
	return nil
}

func runSign(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	var priv string
	if signSSHKey != "" {
		priv, err = signing.LoadSSHKey(signSSHKey)
	} else {
		priv, err = signing.LoadKey(signKey)
	}
	if err != nil {
		return err
	}

	r, err := report.Load(args[0])
	if err != nil {
		return err
	}
	env, err := signing.SignAnalysisReport(r, priv)
	if err != nil {
		return err
	}

	out := signOut
	if out == "" {
		out = strings.TrimSuffix(args[0], ".json") + ".sig.json"
	}
	if err := signing.SaveEnvelope(env, out); err != nil {
		return err
	}
	cmdCtx.Logger.Info("report signed", "report", r.ID, "key", env.KeyID)
	cmdCtx.Infof(cmd, "✓ Signed %s with %s", args[0], env.KeyID)
	cmdCtx.Infof(cmd, "  Envelope: %s", out)
	return nil
}

func runVerify(cmd *cobra.Command, args []string) error {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return err
	}

	env, err := signing.LoadEnvelope(args[0])
	if err != nil {
		return err
	}
	pub, err := signing.LoadKey(verifyPub)
	if err != nil {
		return err
	}

	ok, err := signing.VerifyReport(env, pub)
	if err != nil {
		return err
	}
	result := ux.VerificationView{Valid: ok, KeyID: env.KeyID, Digest: env.Digest}
	if !ok {
		if err := cmdCtx.Print(result); err != nil {
			return err
		}
		return exitcode.WithCode(exitcode.SignatureInvalid, fmt.Sprintf("signature in %s does not verify", args[0]))
	}

	r, err := signing.Open(env)
	if err != nil {
		return err
	}
	result.ReportID = r.ID
	result.Pipeline = r.PipelineName
	if err := cmdCtx.Print(result); err != nil {
		return err
	}
	if verifyShow {
		return cmdCtx.Print(ux.ReportView{Report: r})
	}
	return nil
}
