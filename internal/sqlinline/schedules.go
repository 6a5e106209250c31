package sqlinline

const QInsertSchedule = `--sql 99976a0f-78af-4f08-9b33-c30f6014e252
insert into discovery_schedules(
  id,
  owner_id,
  topics,
  competitors,
  platforms,
  affiliate_signals,
  interval_hours,
  next_run_at,
  enabled,
  created_at,
  updated_at
)
values ($1::uuid, $2::text, $3::jsonb, $4::jsonb, $5::jsonb, $6::boolean, $7::int, $8::timestamptz, $9::boolean, now(), now());
`

const QListDueSchedules = `--sql 0e8f1033-2d3d-4bd0-b441-81eb254c4743
select
  id::text,
  owner_id,
  topics,
  competitors,
  platforms,
  affiliate_signals,
  interval_hours,
  next_run_at,
  enabled
from discovery_schedules
where enabled and next_run_at <= $1::timestamptz
order by next_run_at asc
limit $2::int;
`

const QRescheduleSchedule = `--sql 6d9ca8dd-c42e-4530-9da5-962ffb7eedea
update discovery_schedules
set next_run_at = $2::timestamptz, last_run_at = now(), updated_at = now()
where id = $1::uuid;
`
