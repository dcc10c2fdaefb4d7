package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/psantana5/bandit/pkg/email"
)

var (
	emailTo      []string
	emailSubject string
	emailBody    string
	emailAttach  []string
	emailPreview bool
)

var emailCmd = &cobra.Command{
	Use:   "email",
	Short: "Compose the job's notification email",
	Long: `Write the email the job runner sends when the job finishes. Outside a job the
email document is printed instead.`,
	Args:    cobra.NoArgs,
	PreRunE: requireClient,
	RunE:    runEmail,
}

func init() {
	rootCmd.AddCommand(emailCmd)
	emailCmd.Flags().StringSliceVar(&emailTo, "to", nil, "recipients, comma separated or repeated")
	emailCmd.Flags().StringVar(&emailSubject, "subject", "", "subject line")
	emailCmd.Flags().StringVar(&emailBody, "body", "", "body, HTML or plain text")
	emailCmd.Flags().StringArrayVar(&emailAttach, "attach", nil, "file to attach (repeatable)")
	emailCmd.Flags().BoolVar(&emailPreview, "preview", false, "print a plain-text preview")
}

func runEmail(cmd *cobra.Command, args []string) error {
	msg, err := email.New(client.FileSink(client.Config().Paths.EmailFile), emailTo...)
	if err != nil {
		return err
	}
	if emailSubject != "" {
		if err := msg.Subject(emailSubject); err != nil {
			return err
		}
	}
	if emailBody != "" {
		if err := msg.Body(emailBody); err != nil {
			return err
		}
	}
	for _, path := range emailAttach {
		if err := msg.AddAttachment(path, ""); err != nil {
			return fmt.Errorf("failed to attach %s: %w", path, err)
		}
	}
	if emailPreview {
		fmt.Fprintln(cmd.OutOrStdout(), msg.String())
	}
	return nil
}
