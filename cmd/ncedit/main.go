/*
Copyright © 2019 the ncedit authors.
This file is part of ncedit.

ncedit is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

ncedit is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with ncedit.  If not, see <http://www.gnu.org/licenses/>.
*/

// Command ncedit edits the structure and contents of netCDF files
// using templates.
package main

import (
	"fmt"
	"os"

	"github.com/spatialmodel/ncedit/nceditutil"
)

func main() {
	if err := nceditutil.Root.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(-1)
	}
}
