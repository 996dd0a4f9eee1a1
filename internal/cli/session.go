package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewSessionCmd создаёт группу команд для работы с сессиями.
func NewSessionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Manage classification sessions",
	}

	cmd.AddCommand(
		newSessionSubmitCmd(clientFn, outputFn),
		newSessionResumeCmd(clientFn, outputFn),
		newSessionShowCmd(clientFn, outputFn),
		newSessionQueueCmd(clientFn, outputFn),
	)

	return cmd
}

func newSessionSubmitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var file string
	var intent string

	cmd := &cobra.Command{
		Use:   "submit SESSION_ID --file records.yaml",
		Short: "Submit records and run the pipeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := ReadRecords(file)
			if err != nil {
				return err
			}

			s, err := clientFn().SubmitRecords(args[0], SubmitRequest{Records: records, Intent: intent})
			if err != nil {
				return err
			}

			outputFn().Session(s)
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Records file (YAML or JSON list)")
	cmd.Flags().StringVar(&intent, "intent", "", "Request text, e.g. \"enrich\" or \"spend analysis\"")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func newSessionResumeCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var req DecisionRequest
	var async bool

	cmd := &cobra.Command{
		Use:   "resume SESSION_ID ITEM_ID --action approve|modify|reject|escalate",
		Short: "Apply a review decision and continue the session",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()
			req.ItemID = args[1]

			if async {
				accepted, err := client.DecideAsync(args[0], req)
				if err != nil {
					return err
				}
				out.Notice(fmt.Sprintf("Decision for %s queued", accepted.ItemID))
				return nil
			}

			s, err := client.Decide(args[0], req)
			if err != nil {
				return err
			}
			out.Session(s)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Action, "action", "", "Decision: approve, modify, reject, escalate")
	cmd.Flags().StringVar(&req.Code, "code", "", "Replacement code (modify)")
	cmd.Flags().StringVar(&req.Title, "title", "", "Replacement title (modify)")
	cmd.Flags().StringVar(&req.Comment, "comment", "", "Reviewer comment")
	cmd.Flags().StringVar(&req.Reviewer, "reviewer", "", "Reviewer name")
	cmd.Flags().BoolVar(&async, "async", false, "Queue the decision instead of applying it inline")
	_ = cmd.MarkFlagRequired("action")

	return cmd
}

func newSessionShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show SESSION_ID",
		Short: "Show session state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := clientFn().GetSession(args[0])
			if err != nil {
				return err
			}

			outputFn().Session(s)
			return nil
		},
	}
}

func newSessionQueueCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "queue SESSION_ID",
		Short: "List pending review items by priority",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			items, err := clientFn().ListHITL(args[0])
			if err != nil {
				return err
			}

			outputFn().Queue(items)
			return nil
		},
	}
}

// ReadRecords читает список записей из YAML- или JSON-файла.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	var records []Record
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse records %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("no records in %s", path)
	}
	return records, nil
}
