package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kamusis/catsdogs/internal/model"
	"github.com/kamusis/catsdogs/internal/predict"
)

var predictCmd = &cobra.Command{
	Use:   "predict <image>...",
	Short: "Classify one or more image files",
	Long: `Run the model bundle on each image and print the predicted label, its
probability and the full class distribution.

Example:
  catsdogs predict pets/rex.jpg
  catsdogs predict --json a.png b.png`,
	Args: cobra.MinimumNArgs(1),
	RunE: runPredict,
}

var (
	flagPredictModel string
	flagPredictJSON  bool
)

func init() {
	predictCmd.Flags().StringVar(&flagPredictModel, "model-path", "", "Model bundle (default serve.model_path)")
	predictCmd.Flags().BoolVar(&flagPredictJSON, "json", false, "Print one JSON object per image")
	rootCmd.AddCommand(predictCmd)
}

func runPredict(_ *cobra.Command, args []string) error {
	modelPath := flagPredictModel
	if modelPath == "" {
		modelPath = appConfig.Serve.ModelPath
	}
	b, err := model.Load(modelPath)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	var failed int
	for _, p := range args {
		res, err := predict.Path(b, p)
		if err != nil {
			printErr(p, err.Error())
			failed++
			continue
		}
		if flagPredictJSON {
			if err := enc.Encode(struct {
				Path string `json:"path"`
				*predict.Result
			}{p, res}); err != nil {
				return err
			}
			continue
		}
		printOK(p, fmt.Sprintf("%s (%.4f)", res.Label, res.Probability))
		for _, label := range res.Labels {
			fmt.Printf("        %-6s %.4f\n", label, res.Probabilities[label])
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d image(s) could not be classified", failed)
	}
	return nil
}
