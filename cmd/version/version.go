/*
 * Copyright 2024-2025 Raamsri Kumar <raam@tinkershack.in>
 * Copyright 2024-2025 The StrataSTOR Authors and Contributors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package version

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/stratastor/mpathd/config"
	"github.com/stratastor/mpathd/internal/constants"
	"github.com/stratastor/mpathd/pkg/multipath/dm"
)

func NewVersionCmd() *cobra.Command {
	var kernel bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show mpathd version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("mpathd Version: %s\n", constants.Version)
			fmt.Printf("Commit: %s\n", constants.CommitSHA)
			fmt.Printf("Build Time: %s\n", constants.BuildTime)

			if !kernel {
				return
			}
			ctl, err := dm.Open(config.GetConfig().DM.ControlPath)
			if err != nil {
				fmt.Printf("Kernel dm ioctl: unavailable (%v)\n", err)
				return
			}
			defer ctl.Close()
			fmt.Printf("Kernel dm ioctl: %s\n", ctl.VersionString())
		},
	}

	cmd.Flags().BoolVar(&kernel, "kernel", false, "Also query the device-mapper ioctl version")
	return cmd
}
