package sqlinline

const QSelectCreditBalance = `--sql cadb78aa-3873-4b5b-b3ac-d4cedf13193d
select balance
from credit_balances
where owner_id = $1::text and credit_type = $2::text
limit 1;
`

// QConsumeCredit debits one credit and records the reference. A repeated
// reference fails on the transactions unique key; an empty balance returns
// no row.
const QConsumeCredit = `--sql 74a64a2e-e12d-4224-9be2-307ddeec2aa1
with current_balance as (
    select balance
    from credit_balances
    where owner_id = $1::text and credit_type = $2::text
    for update
),
recorded as (
    insert into credit_transactions(id, owner_id, credit_type, amount, ref_type, ref_id, created_at)
    select gen_random_uuid(), $1::text, $2::text, -1, $3::text, $4::text, now()
    where exists (select 1 from current_balance where balance > 0)
    returning id
),
debited as (
    update credit_balances
    set balance = balance - 1, updated_at = now()
    where owner_id = $1::text and credit_type = $2::text
      and exists (select 1 from recorded)
    returning balance
)
select balance from debited;
`

const QGrantCredits = `--sql 5458de28-5de2-4f90-af08-eea402a12f91
with granted as (
    insert into credit_balances(owner_id, credit_type, balance, updated_at)
    values ($1::text, $2::text, $3::int, now())
    on conflict (owner_id, credit_type) do update set
        balance = credit_balances.balance + excluded.balance,
        updated_at = now()
    returning balance
),
recorded as (
    insert into credit_transactions(id, owner_id, credit_type, amount, ref_type, ref_id, created_at)
    values (gen_random_uuid(), $1::text, $2::text, $3::int, 'grant', gen_random_uuid()::text, now())
)
select balance from granted;
`
