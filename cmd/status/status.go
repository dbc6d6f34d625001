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

package status

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"github.com/stratastor/mpathd/internal/constants"
	"github.com/stratastor/mpathd/pkg/lifecycle"
)

func NewStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Check whether the mpathd server is running",
		RunE: func(cmd *cobra.Command, args []string) error {
			// A running daemon holds the instance lock
			lock := flock.New(constants.MpathdLockPath)
			locked, err := lock.TryLock()
			if err != nil {
				return fmt.Errorf("failed to probe %s: %w", constants.MpathdLockPath, err)
			}
			if locked {
				lock.Unlock()
				fmt.Println("mpathd server is not running")
				return nil
			}

			if pid, err := lifecycle.ReadPID(constants.MpathdPIDFilePath); err == nil {
				fmt.Printf("mpathd server is running (PID: %d)\n", pid)
				return nil
			}
			fmt.Println("mpathd server is running")
			return nil
		},
	}
}
