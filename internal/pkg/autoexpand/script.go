// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package autoexpand

// Paths inside the root and boot filesystems.
const (
	HelperPath  = "/usr/lib/raspi-config/init_resize.sh"
	ScriptPath  = "/etc/init.d/resize2fs_once"
	TriggerPath = "/etc/cron.d/resize2fs_once"
	CmdlinePath = "/cmdline.txt"

	InitParam = "init"
)

const script = `#!/bin/sh
### BEGIN INIT INFO
# Provides:          resize2fs_once
# Required-Start:
# Required-Stop:
# Default-Start:     3
# Default-Stop:
# Short-Description: Resize the root filesystem to fill partition
# Description:
### END INIT INFO

. /lib/lsb/init-functions

case "$1" in
  start)
    log_daemon_msg "Starting resize2fs_once"
    ROOT_DEV=$(findmnt / -o source -n) &&
    resize2fs "$ROOT_DEV" &&
    rm -f ` + TriggerPath + ` &&
    rm -f ` + ScriptPath + ` &&
    log_end_msg $?
    ;;
  *)
    echo "Usage: $0 start" >&2
    exit 3
    ;;
esac
`

const trigger = "@reboot root " + ScriptPath + " start\n"
